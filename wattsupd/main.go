package main

// Connects to a Watts Up? meter via its serial port and makes the latest
// reading available via a webservice.

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bwesterb/go-wattsup"
	"github.com/bwesterb/go-wattsup/config"
	"github.com/bwesterb/go-wattsup/sink"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// latest holds the most recent reading of the meter.
type latest struct {
	mu     sync.Mutex
	record *wattsup.Record
}

func (l *latest) Set(r *wattsup.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record = r
}

func (l *latest) Get() *wattsup.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.record
}

func newRouter(l *latest) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	serveLatest := func(c *gin.Context) {
		r := l.Get()
		if r == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no data, yet"})
			return
		}
		c.JSON(http.StatusOK, r)
	}
	router.GET("/", serveLatest)

	api := router.Group("/api/v1")
	{
		api.GET("/latest", serveLatest)
		api.GET("/health", func(c *gin.Context) {
			status := gin.H{"status": "ok"}
			if r := l.Get(); r != nil {
				status["last_reading"] = r.Time.Format(time.RFC3339)
			}
			c.JSON(http.StatusOK, status)
		})
	}
	return router
}

type options struct {
	port     string
	host     string
	variant  string
	interval int
	timeout  time.Duration
	verbose  bool
}

func run(ctx context.Context, o *options, log *logrus.Logger) error {
	variant, err := wattsup.LookupVariant(o.variant)
	if err != nil {
		return err
	}
	m, err := wattsup.Open(wattsup.Config{
		Port:        o.port,
		Variant:     variant,
		ReadTimeout: o.timeout,
		Device:      wattsup.DeviceID(o.port),
		Logger:      log,
	})
	if err != nil {
		return err
	}
	defer m.Close()

	cfg := config.Load()
	sinks, err := sink.Open(ctx, cfg.MQTT, cfg.ClickHouse, log)
	if err != nil {
		return err
	}
	defer sinks.Close()

	var l latest
	srv := &http.Server{Addr: o.host, Handler: newRouter(&l)}

	go func() {
		for r := range m.Stream(ctx, o.interval) {
			l.Set(r)
			if err := sinks.Write(ctx, r); err != nil {
				log.WithError(err).Warn("Could not forward reading")
			}
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.WithField("host", o.host).Info("Serving readings")
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func main() {
	o := &options{}
	cmd := &cobra.Command{
		Use:          "wattsupd",
		Short:        "Serve the latest Watts Up? reading over HTTP",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := config.NewLogger(false)
			config.EnvOverride(cmd.Flags(), "WATTSUPD", log)
			if o.verbose {
				log.SetLevel(logrus.DebugLevel)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}
			return run(cmd.Context(), o, log)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.port, "serial", "/dev/ttyUSB0", "path to serial port")
	f.StringVar(&o.host, "host", "127.0.0.1:1121", "host to bind to for webserver")
	f.StringVar(&o.variant, "variant", wattsup.VariantPro.Name, "record layout of the meter's firmware: pro or legacy")
	f.IntVarP(&o.interval, "sample-interval", "s", 1, "sample interval in seconds")
	f.DurationVar(&o.timeout, "timeout", 0, "serial read timeout, 0 blocks forever")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "extra output messages")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
