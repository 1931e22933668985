package main

import (
	"io"
	"os"
	"time"

	"github.com/bwesterb/go-wattsup"
	"github.com/bwesterb/go-wattsup/config"
	"github.com/bwesterb/go-wattsup/sink"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type logOptions struct {
	format   string
	outfile  string
	save     bool
	interval int
	deviceID string
}

func newLogCmd(a *app) *cobra.Command {
	o := &logOptions{}
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Record samples to stdout or a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLog(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.format, "format", "f", wattsup.FormatRaw, "how to write samples: raw (CSV), pretty or json")
	f.StringVar(&o.outfile, "outfile", "", "file to write samples to")
	f.BoolVar(&o.save, "save", false, "like --outfile, but the filename is set for you")
	f.IntVarP(&o.interval, "sample-interval", "s", 1, "sample interval in seconds")
	f.StringVar(&o.deviceID, "device-id", "", "id attached to forwarded samples (default: port name)")
	return cmd
}

func (a *app) runLog(cmd *cobra.Command, o *logOptions) error {
	outfile := o.outfile
	if outfile == "" && o.save {
		outfile = wattsup.LogFileName(time.Now())
	}

	var out io.Writer = cmd.OutOrStdout()
	if outfile != "" {
		f, err := os.Create(outfile)
		if err != nil {
			return errors.Wrap(err, "creating log file")
		}
		defer f.Close()
		out = f
		a.log.WithField("file", outfile).Info("Logging to file")
	}

	enc, err := wattsup.NewEncoder(o.format, out)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cfg := config.Load()
	sinks, err := sink.Open(ctx, cfg.MQTT, cfg.ClickHouse, a.log)
	if err != nil {
		return err
	}
	defer sinks.Close()

	m, err := a.openMeter()
	if err != nil {
		return err
	}
	defer m.Close()

	if outfile != "" && o.format == wattsup.FormatRaw {
		if err := wattsup.WriteLogPreamble(out, m.Variant().Labels(), time.Now()); err != nil {
			return err
		}
	}

	device := o.deviceID
	if device == "" {
		device = wattsup.DeviceID(a.port)
	}

	return m.Log(ctx, o.interval, func(r *wattsup.Record) error {
		r.Device = device
		if err := enc.Encode(r); err != nil {
			return errors.Wrap(err, "writing sample")
		}
		if err := sinks.Write(ctx, r); err != nil {
			a.log.WithError(err).Warn("Could not forward sample")
		}
		return nil
	})
}
