package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/klokku/outlook-calendar/internal/config"
	"github.com/klokku/outlook-calendar/internal/rest"
	"github.com/spf13/cobra"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Print the URL that links the calendar account",
	Long: `Asks the running server for the authorization URL of the configured provider.

The provider redirects back to the callback endpoint of that server, which only
accepts codes of the links it handed out, so start it with
'outlook-calendar serve' first.`,
	RunE: runLink,
}

func runLink(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, cfg.Host+"/api/setup", nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("server not reachable at %s: %w", cfg.Host, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body struct {
			RedirectUrl string `json:"redirectUrl"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("unexpected response from server: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), body.RedirectUrl)
		return nil
	case http.StatusConflict:
		fmt.Fprintln(cmd.OutOrStdout(), "Calendar account is already linked")
		return nil
	default:
		var body rest.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
}
