package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/browser"
	"github.com/sarchlab/simtrace/config"
	"github.com/sarchlab/simtrace/monitoring"
	"github.com/spf13/cobra"
)

func startMonitor(
	cmd *cobra.Command,
	cfg config.Config,
	p *printer,
	logger *slog.Logger,
) (*monitoring.Monitor, func(), error) {
	m := monitoring.NewMonitor().
		WithLogger(logger).
		WithPortNumber(cfg.MonitorPort).
		WithDepth(cfg.Depth)

	url, err := m.StartServer()
	if err != nil {
		return nil, nil, err
	}

	p.note("Monitoring simulation with %s", url)

	openBrowser, err := cmd.Flags().GetBool("open-browser")
	if err == nil && openBrowser {
		if err := browser.OpenURL(url); err != nil {
			p.warn("Cannot open a browser: %v", err)
		}
	}

	stop := func() {
		m.CompleteAll()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := m.StopServer(ctx); err != nil {
			logger.Warn("monitoring server did not stop cleanly",
				"error", err)
		}
	}

	return m, stop, nil
}
