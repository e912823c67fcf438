package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	appexport "github.com/avelar/rankexport/internal/app/export"
	"github.com/avelar/rankexport/internal/config"
	"github.com/avelar/rankexport/internal/infra/exportapi"
	"github.com/avelar/rankexport/pkg/common/logger"
	"github.com/avelar/rankexport/pkg/common/otel"
)

const svcName = "rankexport"

// Exit codes: 0 complete, 1 failed, 2 cancelled.
func main() {
	_, _ = maxprocs.Set()
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		serviceURL = flag.String("service", "", "report service base URL (overrides config)")
		outputPath = flag.String("out", "", "output file path (overrides config)")
		verbose    = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *serviceURL != "" {
		os.Setenv("RANKEXPORT_SERVICE_URL", *serviceURL)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rankexport: %v\n", err)
		return 1
	}
	if *outputPath != "" {
		cfg.OutputPath = *outputPath
	}

	level := logger.LevelInfo
	if *verbose || cfg.LogLevel == "debug" {
		level = logger.LevelDebug
	}
	log := logger.New(os.Stderr, level, svcName, otel.GetTraceID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerProvider := trace.TracerProvider(noop.NewTracerProvider())
	if cfg.Telemetry.Endpoint != "" {
		tp, cleanup, err := otel.InitTelemetry(log, otel.Config{
			ServiceName:      svcName,
			ExporterEndpoint: cfg.Telemetry.Endpoint,
			Probability:      cfg.Telemetry.Probability,
			InsecureExporter: cfg.Telemetry.Insecure,
		})
		if err != nil {
			log.Error(ctx, "Telemetry init failed, continuing without tracing", "error", err)
		} else {
			tracerProvider = tp
			defer cleanup(context.Background())
		}
	}
	tracer := tracerProvider.Tracer(svcName)

	svc := exportapi.NewClient(exportapi.Config{
		BaseURL:        cfg.ServiceURL,
		AuthToken:      cfg.AuthToken,
		PrepareTimeout: cfg.PrepareTimeout,
		BatchTimeout:   cfg.BatchTimeout,
	}, log, tracer)

	reporter := newConsoleReporter()
	controller := appexport.NewController(appexport.ControllerConfig{
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: cfg.BackoffBase,
	}, svc, reporter, log, tracer)

	// A signal requests cooperative cancellation; the run quiesces at the
	// next scheduling checkpoint rather than aborting the in-flight
	// request.
	go func() {
		<-ctx.Done()
		controller.Cancel()
	}()

	var runErr error
	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		defer reporter.Close()
		runErr = controller.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return reporter.render(os.Stdout)
	})
	_ = g.Wait()

	switch {
	case runErr == nil:
		return finishComplete(ctx, log, controller, cfg)
	case errors.Is(runErr, appexport.ErrJobCancelled):
		return 2
	default:
		return 1
	}
}

// finishComplete downloads the assembled file and writes the run
// manifest beside it.
func finishComplete(ctx context.Context, log *logger.Logger, controller *appexport.Controller, cfg config.Config) int {
	out, err := os.Create(cfg.OutputPath)
	if err != nil {
		log.Error(ctx, "Creating output file failed", "path", cfg.OutputPath, "error", err)
		return 1
	}
	defer out.Close()

	// The download does not participate in the state machine: a failure
	// here leaves the job Complete and the command can simply be re-run.
	n, err := controller.Download(context.Background(), out)
	if err != nil {
		log.Error(ctx, "Download failed; the export is still available, retry the download", "error", err)
		return 1
	}
	log.Info(ctx, "Export file written", "path", cfg.OutputPath, "bytes", n)

	manifest := appexport.BuildManifest(controller.Job(), cfg.OutputPath, n)
	if err := manifest.WriteFile(cfg.OutputPath + ".manifest.yaml"); err != nil {
		log.Warn(ctx, "Writing run manifest failed", "error", err)
	}
	return 0
}
