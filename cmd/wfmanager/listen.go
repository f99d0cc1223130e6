package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/force-h2020/wfmanager/analysis"
	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/event"
	"github.com/force-h2020/wfmanager/metric"
	"github.com/force-h2020/wfmanager/notification"
)

func newListenCmd(a *app) *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Receive run notifications and print results as they arrive",
		Long: `Bind the notification subjects on NATS and wait for runs. Each run
announces itself with a HELLO on the sync subject; its events are then
printed as a results table until the run says GOODBYE. Prometheus metrics
are served while listening unless metrics.enabled is false.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.listen(cmd.Context(), shutdownTimeout)
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second,
		"time allowed to drain queued events on shutdown")
	return cmd
}

func (a *app) listen(ctx context.Context, shutdownTimeout time.Duration) error {
	client, err := a.connectNATS(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close(context.WithoutCancel(ctx)) }()

	printer := &resultPrinter{w: a.out}
	dispatcher := analysis.NewDispatcher(analysis.NewModel(), a.metrics,
		analysis.WithLogger(a.logger),
		analysis.OnApply(printer.apply))
	if err := dispatcher.Start(ctx); err != nil {
		return err
	}

	server, err := notification.NewServer(client, a.notificationConfig(), dispatcher.Dispatch,
		notification.WithServerLogger(a.logger),
		notification.WithServerMetrics(a.metrics.CoreMetrics()))
	if err != nil {
		_ = dispatcher.Stop(shutdownTimeout)
		return err
	}
	if err := server.Start(ctx); err != nil {
		_ = dispatcher.Stop(shutdownTimeout)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Metrics.Enabled {
		metrics := metric.NewServer(a.cfg.Metrics.Address, a.cfg.Metrics.Path, a.metrics)
		g.Go(metrics.Start)
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return metrics.Stop(stopCtx)
		})
		a.logger.Info("Serving metrics", "address", metrics.Address())
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down", "received", server.Received())
		server.Stop()
		if err := dispatcher.Stop(shutdownTimeout); err != nil {
			return errors.Wrap(err, "wfmanager", "listen", "drain events")
		}
		return nil
	})

	a.logger.Info("Listening for run notifications",
		"pub_subject", a.cfg.Notification.PubSubject,
		"sync_subject", a.cfg.Notification.SyncSubject)
	return g.Wait()
}

// resultPrinter writes the results table as it grows. It runs on the
// dispatcher goroutine only.
type resultPrinter struct {
	w io.Writer
}

func (p *resultPrinter) apply(m *analysis.Model, ev event.Event) {
	switch ev.(type) {
	case *event.StartEvent:
		_, _ = fmt.Fprintf(p.w, "run started\nstep\t%s\n", strings.Join(m.Columns(), "\t"))
	case *event.ProgressEvent:
		rows := m.Rows()
		row := rows[len(rows)-1]
		cells := make([]string, 0, len(row.Values)+1)
		cells = append(cells, fmt.Sprint(row.Step))
		for _, v := range row.Values {
			cells = append(cells, fmt.Sprint(v))
		}
		_, _ = fmt.Fprintln(p.w, strings.Join(cells, "\t"))
	case *event.FinishEvent:
		_, _ = fmt.Fprintf(p.w, "run finished: %d point(s)\n", len(m.Rows()))
	}
}
