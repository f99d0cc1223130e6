package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/event"
	"github.com/force-h2020/wfmanager/notification"
	"github.com/force-h2020/wfmanager/pkg/retry"
	"github.com/force-h2020/wfmanager/pluginregistry"
	"github.com/force-h2020/wfmanager/workflow"
	"github.com/force-h2020/wfmanager/workflowtree"
)

func newSimulateCmd(a *app) *cobra.Command {
	var steps int
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "simulate <file>",
		Short: "Report a fake run of a workflow to a listening UI",
		Long: `Verify the workflow file, attach a UI notification listener to it and
report a run with random optimal points over NATS, exactly as an optimiser
would. Use it against "wfmanager listen" to check the notification setup.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 0 {
				return errors.WrapInvalid(fmt.Errorf("%w: steps must not be negative", errors.ErrInvalidConfig),
					"wfmanager", "simulate", "flag check")
			}
			return a.simulate(cmd.Context(), args[0], steps, interval)
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 10, "number of progress events to send")
	cmd.Flags().DurationVar(&interval, "interval", 100*time.Millisecond, "delay between progress events")
	return cmd
}

func (a *app) simulate(ctx context.Context, path string, steps int, interval time.Duration) error {
	wf, err := workflow.LoadFile(path)
	if err != nil {
		return err
	}
	registry, err := pluginregistry.NewDefault()
	if err != nil {
		return err
	}
	tree, err := workflowtree.New(wf, registry,
		workflowtree.WithLogger(a.logger),
		workflowtree.WithMetrics(a.metrics.CoreMetrics()))
	if err != nil {
		return err
	}
	defer tree.Close()

	if !tree.Valid() {
		printReport(a.out, tree)
		return errWorkflowInvalid
	}

	client, err := a.newNATSClient()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close(context.WithoutCancel(ctx)) }()

	hooks := notification.NewHookManager(tree, a.notificationConfig())
	model, err := hooks.BeforeExecution()
	if err != nil {
		return err
	}
	defer func() {
		if err := hooks.AfterExecution(); err != nil {
			a.logger.Warn("Failed to detach notification listener", "error", err)
		}
	}()

	listener, err := notification.NewListener(client, model,
		notification.WithLogger(a.logger),
		notification.WithMetrics(a.metrics.CoreMetrics()),
		notification.WithHandshakeTimeout(a.cfg.Notification.HandshakeTimeout),
		notification.WithConnector(client, retry.Quick()))
	if err != nil {
		return err
	}

	listener.Initialize(ctx)
	defer listener.Finalize(context.WithoutCancel(ctx))

	runSimulation(ctx, wf.MCO(), listener, steps, interval)

	if listener.Degraded() {
		a.logger.Warn("Run finished without a listening UI", "identifier", model.Identifier())
	} else {
		a.logger.Info("Run reported", "identifier", model.Identifier(), "steps", steps)
	}
	return nil
}

// deliverer is the part of notification.Listener the simulation drives.
type deliverer interface {
	Deliver(ctx context.Context, ev event.Event)
}

// runSimulation sends a start event, steps progress events with random
// values and a finish event. It stops early, without a finish event, when
// ctx is done.
func runSimulation(ctx context.Context, mco *workflow.MCOModel, out deliverer, steps int, interval time.Duration) {
	params := mco.Parameters()
	kpis := mco.KPIs()

	start := &event.StartEvent{
		ParameterNames: make([]string, len(params)),
		KPINames:       make([]string, len(kpis)),
	}
	for i, p := range params {
		start.ParameterNames[i] = p.Name()
	}
	for i, k := range kpis {
		start.KPINames[i] = k.Name()
	}
	out.Deliver(ctx, start)

	ticker := time.NewTicker(max(interval, time.Millisecond))
	defer ticker.Stop()

	for range steps {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		progress := &event.ProgressEvent{
			OptimalPoint: make([]event.DataValue, len(params)),
			OptimalKPIs:  make([]event.DataValue, len(kpis)),
			Weights:      make([]float64, len(kpis)),
		}
		for i, p := range params {
			progress.OptimalPoint[i] = event.DataValue{Type: p.Type(), Value: rand.Float64(), Name: p.Name()}
		}
		for i, k := range kpis {
			progress.OptimalKPIs[i] = event.DataValue{Type: "NUMBER", Value: rand.Float64(), Name: k.Name()}
			progress.Weights[i] = 1 / float64(len(kpis))
		}
		out.Deliver(ctx, progress)
	}

	out.Deliver(ctx, &event.FinishEvent{})
}
