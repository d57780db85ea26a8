package cmd

import (
	"fmt"
	"time"

	"github.com/klokku/outlook-calendar/internal/app"
	"github.com/klokku/outlook-calendar/pkg/event_poller"
	"github.com/spf13/cobra"
)

var (
	eventsDays       int
	eventsMaxResults int
	eventsFilter     string
)

var eventsCmd = &cobra.Command{
	Use:   "events <calendar-id>",
	Short: "List upcoming events of a calendar",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvents,
}

func init() {
	eventsCmd.Flags().IntVar(&eventsDays, "days", 7, "number of days to look ahead")
	eventsCmd.Flags().IntVar(&eventsMaxResults, "max-results", event_poller.DefaultMaxResults, "maximum number of events")
	eventsCmd.Flags().StringVar(&eventsFilter, "filter", "", "provider specific search filter")
}

func runEvents(cmd *cobra.Command, args []string) error {
	_, deps, err := app.Load(cmd.Context(), cfgFile)
	if err != nil {
		return err
	}
	defer deps.Close()

	if !deps.OAuthClient.HasToken() {
		return fmt.Errorf("account not linked, run 'outlook-calendar link' first")
	}

	start := deps.Clock.Now()
	events, err := deps.CalendarClient.ListEvents(cmd.Context(), args[0], start, start.AddDate(0, 0, eventsDays), eventsMaxResults, eventsFilter)
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, e := range events {
		fmt.Fprintf(out, "%s - %s  %s", e.Start.Local().Format(time.DateTime), e.End.Local().Format(time.DateTime), e.Description)
		if e.Location != "" {
			fmt.Fprintf(out, " (%s)", e.Location)
		}
		fmt.Fprintf(out, " [%s]\n", e.Availability)
	}
	return nil
}
