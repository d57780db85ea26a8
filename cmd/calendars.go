package cmd

import (
	"fmt"

	"github.com/klokku/outlook-calendar/internal/app"
	"github.com/spf13/cobra"
)

var calendarsCmd = &cobra.Command{
	Use:   "calendars",
	Short: "List calendars of the linked account",
	RunE:  runCalendars,
}

func runCalendars(cmd *cobra.Command, args []string) error {
	_, deps, err := app.Load(cmd.Context(), cfgFile)
	if err != nil {
		return err
	}
	defer deps.Close()

	if !deps.OAuthClient.HasToken() {
		return fmt.Errorf("account not linked, run 'outlook-calendar link' first")
	}

	calendars, err := deps.CalendarClient.ListCalendars(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list calendars: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, cal := range calendars {
		fmt.Fprintf(out, "%s\n  ID: %s\n", cal.Name, cal.Id)
	}
	fmt.Fprintf(out, "Total calendars: %d\n", len(calendars))
	return nil
}
