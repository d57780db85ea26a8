package cmd

import (
	"github.com/klokku/outlook-calendar/internal/app"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "outlook-calendar",
	Short: "Outlook and Google calendar integration",
	Long: `Links a Microsoft (or Google) account, tracks its calendars and exposes the
next event of every tracked calendar as an entity over a small HTTP API.

Tracked calendars are kept in outlook_calendars.yaml inside the configured
configuration directory.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", app.DefaultConfigPath, "application config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(calendarsCmd)
	rootCmd.AddCommand(eventsCmd)
}
