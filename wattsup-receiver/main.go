package main

// Receives readings posted by network-enabled Watts Up? meters and prints
// each one as a JSON line on stdout.

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwesterb/go-wattsup/config"
	"github.com/bwesterb/go-wattsup/ingest"
	"github.com/bwesterb/go-wattsup/sink"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	listen  string
	timeout time.Duration
	verbose bool
}

func run(ctx context.Context, o *options, log *logrus.Logger) error {
	cfg := config.Load()
	sinks, err := sink.Open(ctx, cfg.MQTT, cfg.ClickHouse, log)
	if err != nil {
		return err
	}
	defer sinks.Close()

	ln, err := net.Listen("tcp", o.listen)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", o.listen)
	}

	rc := ingest.NewReceiver(ingest.Config{
		Out:         os.Stdout,
		ReadTimeout: o.timeout,
		Sink:        sinks,
		Logger:      log,
	})
	return rc.Serve(ctx, ln)
}

func main() {
	o := &options{}
	cmd := &cobra.Command{
		Use:          "wattsup-receiver",
		Short:        "Receive readings posted by Watts Up? .NET meters",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := config.NewLogger(false)
			config.EnvOverride(cmd.Flags(), "WATTSUP_RECEIVER", log)
			if o.verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			return run(cmd.Context(), o, log)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.listen, "listen", ":8080", "address to accept meter posts on")
	f.DurationVar(&o.timeout, "timeout", 0, "deadline for reading a request, 0 waits forever")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "extra output messages")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
