package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/andresmedinaorbidi/clarity/internal/http"
)

var serverURL string

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check clarity server health",
	Long: `Check the health status of a running clarity server.

Examples:
  # Check health
  clarity health

  # Check health on a different server
  clarity health --server http://localhost:9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return checkHealth(cmd.Context(), cmd.OutOrStdout(), serverURL)
	},
}

func init() {
	healthCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8700", "clarity server URL")
}

func checkHealth(ctx context.Context, out io.Writer, base string) error {
	url := strings.TrimRight(base, "/") + "/health"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var health httpserver.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Fprintf(out, "Server Status: %s\n", health.Status)
	if health.Version != "" {
		fmt.Fprintf(out, "Version: %s\n", health.Version)
	}
	return nil
}
