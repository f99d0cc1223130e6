package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/force-h2020/wfmanager/config"
	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/metric"
	"github.com/force-h2020/wfmanager/natsclient"
	"github.com/force-h2020/wfmanager/notification"
	"github.com/force-h2020/wfmanager/pkg/retry"
)

const connectTimeout = 10 * time.Second

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// app carries what every subcommand needs once flags have been parsed.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metric.MetricsRegistry
	out     io.Writer
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	a := &app{}

	root := &cobra.Command{
		Use:           appName,
		Short:         "Validate workflows and follow optimisation runs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd, flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "configuration file (.yaml, .yml or .json)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: json or text")

	root.AddCommand(
		newValidateCmd(a),
		newListenCmd(a),
		newSimulateCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command, flags globalFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	a.cfg = cfg
	a.out = cmd.OutOrStdout()
	a.logger = setupLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(a.logger)
	a.metrics = metric.NewMetricsRegistry()

	a.logger.Debug("Configuration loaded", "config_path", flags.configPath, "config", cfg.String())
	return nil
}

func (a *app) notificationConfig() notification.Config {
	return notification.Config{
		PubSubject:      a.cfg.Notification.PubSubject,
		SyncSubject:     a.cfg.Notification.SyncSubject,
		ProtocolVersion: a.cfg.Notification.ProtocolVersion,
	}
}

func (a *app) newNATSClient() (*natsclient.Client, error) {
	m := a.metrics.CoreMetrics()
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(a.logger),
		natsclient.WithName(a.cfg.NATS.Name),
		natsclient.WithMaxReconnects(a.cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(a.cfg.NATS.ReconnectWait),
		natsclient.WithTimeout(a.cfg.NATS.Timeout),
		natsclient.WithDisconnectCallback(func(error) {
			m.RecordNATSStatus(false)
		}),
		natsclient.WithReconnectCallback(func() {
			m.RecordNATSStatus(true)
			m.RecordNATSReconnect()
		}),
	}
	switch {
	case a.cfg.NATS.Username != "":
		opts = append(opts, natsclient.WithCredentials(a.cfg.NATS.Username, a.cfg.NATS.Password))
	case a.cfg.NATS.Token != "":
		opts = append(opts, natsclient.WithToken(a.cfg.NATS.Token))
	}

	client, err := natsclient.NewClient(a.cfg.NATS.URL, opts...)
	if err != nil {
		return nil, errors.WrapInvalid(err, "wfmanager", "newNATSClient", "create NATS client")
	}
	return client, nil
}

// connectNATS creates a client and keeps dialling until the server answers
// or ctx ends.
func (a *app) connectNATS(ctx context.Context) (*natsclient.Client, error) {
	client, err := a.newNATSClient()
	if err != nil {
		return nil, err
	}

	a.logger.Info("Connecting to NATS", "url", a.cfg.NATS.URL)
	if err := retry.Do(ctx, retry.Persistent(), func() error {
		return client.Connect(ctx)
	}); err != nil {
		return nil, errors.Wrap(err, "wfmanager", "connectNATS", "connect to NATS")
	}

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	a.metrics.CoreMetrics().RecordNATSStatus(true)
	return client, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// No configuration is needed to print the version.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	}
}
