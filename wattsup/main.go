package main

// Talks to a Watts Up? power meter over its USB serial port: prints its
// header, version and network settings, resets it, configures its network
// posting or logs its readings as CSV, text or JSON.

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwesterb/go-wattsup"
	"github.com/bwesterb/go-wattsup/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const envPrefix = "WATTSUP"

type app struct {
	port    string
	verbose bool
	variant string
	retries int
	timeout time.Duration
	replay  bool

	log *logrus.Logger
}

func (a *app) openMeter() (*wattsup.Meter, error) {
	if a.port == "" {
		return nil, errors.New("no serial port given, use --port or " +
			config.EnvName(envPrefix, "port"))
	}
	variant, err := wattsup.LookupVariant(a.variant)
	if err != nil {
		return nil, err
	}
	m, err := wattsup.Open(wattsup.Config{
		Port:        a.port,
		Variant:     variant,
		ReadTimeout: a.timeout,
		Retries:     a.retries,
		Replay:      a.replay,
		Logger:      a.log,
	})
	if errors.Is(err, wattsup.ErrDeviceNotFound) {
		a.log.Fatalf("Could not find the Watts Up? meter: %v", err)
	}
	return m, err
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "wattsup",
		Short:         "Get data from a Watts Up? power meter",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.log = config.NewLogger(false)
			config.EnvOverride(cmd.Flags(), envPrefix, a.log)
			if a.verbose {
				a.log.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.port, "port", "p", "", "USB serial port that the meter is connected to (required)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "extra output messages")
	pf.StringVar(&a.variant, "variant", wattsup.VariantPro.Name, "record layout of the meter's firmware: pro or legacy")
	pf.IntVar(&a.retries, "retries", wattsup.DefaultRetries, "attempts per query, -1 to retry forever")
	pf.DurationVar(&a.timeout, "timeout", 0, "serial read timeout, 0 blocks forever")
	pf.BoolVar(&a.replay, "replay", false, "read meter output from the file given as --port")

	root.AddCommand(
		newHeaderCmd(a),
		newInfoCmd(a),
		newResetCmd(a),
		newLogCmd(a),
		newNetworkCmd(a),
	)
	return root
}

func newHeaderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "header",
		Short: "Print the data header info and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.openMeter()
			if err != nil {
				return err
			}
			defer m.Close()

			h, err := m.Header()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Headings: "+strings.Join(h, ", "))
			return nil
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the meter's identifying information and network settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.openMeter()
			if err != nil {
				return err
			}
			defer m.Close()

			v, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), v)

			n, err := m.Network()
			if errors.Is(err, wattsup.ErrNoResponse) {
				a.log.Warn("No network information, is this a .NET meter?")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), "\n", n)
			return nil
		},
	}
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Soft reset the meter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.openMeter()
			if err != nil {
				return err
			}
			defer m.Close()
			return m.Reset()
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		root.PrintErrln("Error:", err)
		os.Exit(1)
	}
}
