package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kjstillabower/launch-dashboard/internal/client"
	"github.com/kjstillabower/launch-dashboard/internal/config"
	"github.com/kjstillabower/launch-dashboard/internal/validation"
)

func newProbeCmd() *cobra.Command {
	var url string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Fetch the upstream status once and report its shape",
		Long: `Fetch the upstream status document once, the same way GET /api/status does,
and print the HTTP outcome and detected payload shape. Uses status_api.url from
config unless --url is given. Exits non-zero when the fetch fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("config: %w", err)
				}
				url = cfg.StatusAPIURL
				if !cmd.Flags().Changed("timeout") {
					timeout = cfg.StatusAPITimeout
				}
			}
			c, err := client.NewHTTPClient(url, "", timeout)
			if err != nil {
				return err
			}
			defer c.CloseIdleConnections()
			return probe(cmd.Context(), c, url, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "status endpoint to fetch (default: status_api.url from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "upstream timeout")
	return cmd
}

func probe(ctx context.Context, c client.SimulationClient, url string, out io.Writer) error {
	start := time.Now()
	body, err := c.FetchStatus(ctx)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		fmt.Fprintf(out, "%s: failed after %s (%s)\n", url, elapsed, client.CategorizeError(err))
		return err
	}
	shape, shapeErr := validation.CheckStatusPayload(body)
	fmt.Fprintf(out, "%s: ok in %s, %d bytes, shape %s\n", url, elapsed, len(body), shape)
	if shapeErr != nil {
		fmt.Fprintf(out, "warning: %v\n", shapeErr)
	}
	return nil
}
