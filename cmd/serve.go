package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/klokku/outlook-calendar/internal/app"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the polling scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApplication(ctx, cfgFile)
	if err != nil {
		return err
	}
	return application.Run(ctx)
}
