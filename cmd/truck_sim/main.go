package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/coldchain/trucksim/internal/config"
	"github.com/coldchain/trucksim/internal/control"
	"github.com/coldchain/trucksim/internal/dispatcher"
	"github.com/coldchain/trucksim/internal/engine"
	"github.com/coldchain/trucksim/internal/geo"
	"github.com/coldchain/trucksim/internal/hub"
	"github.com/coldchain/trucksim/internal/influx"
	"github.com/coldchain/trucksim/internal/logging"
	"github.com/coldchain/trucksim/internal/monitor"
	"github.com/coldchain/trucksim/internal/observability"
	intOtel "github.com/coldchain/trucksim/internal/otel"
	"github.com/coldchain/trucksim/internal/storage"
	"github.com/coldchain/trucksim/internal/telemetry"
	"github.com/coldchain/trucksim/internal/truck"
	"github.com/coldchain/trucksim/internal/twin"
)

// BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "truck_sim"
)

var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// ZLogger is the zerolog logger handed to the storage and Influx layers
	ZLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()

	// simEngine feeds the truck state attributes added to every log record
	simEngine atomic.Pointer[engine.Engine]
)

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	flag.Parse()

	SlogManager = logging.NewSlogManager()
	SlogManager.StateProvider = truckStateAttrs
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(*configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}

	logFile, err := setupLogging()
	if err != nil {
		Logger.Error("Failed to set up logging", "error", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	Logger.Info("Starting truck simulator", "version", CurrentVersion, "buildDate", BuildDate)

	if err := run(); err != nil {
		Logger.Error("Truck simulator failed", "error", err)
		shutdownTelemetry()
		os.Exit(1)
	}
	shutdownTelemetry()
}

// setupLogging opens the session log file and rebuilds the slog, OTel and
// zerolog outputs from the loaded config.
func setupLogging() (*os.File, error) {
	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}

	logPath := logging.LogFilePath(logsDir, AppName, SessionStartTime)
	if _, err := os.Stat(logPath); err == nil {
		os.Rename(logPath, logPath+".old")
	}
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", logPath, err)
	}

	otelCfg := config.GetOTelConfig()
	var provider *sdklog.LoggerProvider
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      true,
			ServiceName:  otelCfg.ServiceName,
			InstanceID:   viper.GetString("truckId"),
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    logFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Warn("Failed to set up OpenTelemetry", "error", err)
		} else {
			provider = OTelProvider.LoggerProvider()
		}
	}

	level := viper.GetString("logLevel")
	SlogManager.Setup(logFile, level, provider)
	Logger = SlogManager.Logger()

	var graylog string
	if viper.GetBool("graylog.enabled") {
		graylog = viper.GetString("graylog.address")
	}
	ZLogger, err = logging.NewZerolog(logging.ZerologConfig{
		Level:          level,
		Console:        os.Stdout,
		File:           logFile,
		GraylogAddress: graylog,
		Component:      AppName,
	})
	if err != nil {
		Logger.Warn("Graylog output disabled", "error", err)
	}

	Logger.Info("Logging configured", "file", logPath, "level", level, "otel", provider != nil)
	return logFile, nil
}

func truckStateAttrs() []slog.Attr {
	sim := simEngine.Load()
	if sim == nil {
		return nil
	}
	s := sim.Snapshot()
	return []slog.Attr{
		slog.String("truckState", s.Operational.String()),
		slog.String("contentsState", s.Cargo.String()),
	}
}

func shutdownTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "flushing logs: %v\n", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "shutting down otel: %v\n", err)
		}
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	simCfg := config.GetSimConfig()
	telCfg := config.GetTelemetryConfig()
	truckID := viper.GetString("truckId")

	collector, err := observability.NewTruckCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("creating metrics collector: %w", err)
	}

	backend, err := initStorage(ctx, simCfg.Customers)
	if err != nil {
		return err
	}
	defer backend.Close()

	customers, err := backend.Customers()
	if err != nil {
		return fmt.Errorf("loading customers: %w", err)
	}

	params := truck.DefaultParams()
	params.LoadingTime = simCfg.LoadingTime
	params.DeliverTime = simCfg.DeliverTime
	params.DumpingTime = simCfg.DumpingTime
	params.OptimalTemperature = simCfg.OptimalTemperature
	params.OutsideTemperature = simCfg.OutsideTemperature
	params.LoadTemperature = simCfg.LoadTemperature
	params.TooWarmThreshold = simCfg.TooWarmThreshold
	params.TooWarmTooLong = simCfg.TooWarmTooLong
	params.FailurePercent = simCfg.FailurePercent
	params.Base = simCfg.Base
	params.Customers = customers

	for i, c := range customers {
		if err := geo.Validate(c.Location); err != nil {
			return fmt.Errorf("customer %d (%s): %w", i, c.Name, err)
		}
	}
	if err := geo.Validate(params.Base); err != nil {
		return fmt.Errorf("base: %w", err)
	}

	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(ZLogger.With().Str("component", "dispatcher").Logger()))
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	defer eventDispatcher.Close()

	var sinks telemetry.Multi
	if telCfg.Store {
		sinks = append(sinks, storage.NewTelemetrySink(backend))
	}
	if telCfg.LogRecords {
		sinks = append(sinks, telemetry.NewLogSink(Logger))
	}

	if viper.GetBool("influx.enabled") {
		influxManager := influx.NewManager(ZLogger.With().Str("component", "influx").Logger(),
			filepath.Join(viper.GetString("logsDir"), fmt.Sprintf("%s_influx_%s.lp.gz", AppName, SessionStartTime.Format("20060102_150405"))))
		if err := influxManager.Connect(ctx); err != nil {
			Logger.Warn("InfluxDB unavailable", "error", err)
		} else {
			defer influxManager.Close()
			sinks = append(sinks, influxManager)
		}
	}

	hubCfg := config.GetHubConfig()
	var hubClient *hub.Client
	if hubCfg.Enabled {
		hubClient = hub.New(hub.Config{URL: hubCfg.URL, DeviceID: hubCfg.DeviceID}, eventDispatcher, Logger)
		sinks = append(sinks, hubClient)
	}

	sim := engine.New(engine.Config{
		TruckID:           truckID,
		TickInterval:      simCfg.TickInterval,
		TimeScale:         simCfg.TimeScale,
		TelemetryInterval: telCfg.Interval,
		QueueSize:         telCfg.QueueSize,
		Seed:              simCfg.Seed,
		StartLoading:      simCfg.StartLoading,
	}, params, geo.NewNavigator(simCfg.Speed, simCfg.ArrivalTolerance), sinks,
		engine.WithRecorder(collector),
		engine.WithLogger(Logger.With("component", "engine")),
	)
	simEngine.Store(sim)
	sim.RegisterHandlers(eventDispatcher)

	deviceTwin := twin.New(hubCfg.DeviceID, sim, backend, ZLogger.With().Str("component", "twin").Logger())
	eventDispatcher.Register(twin.CommandDesiredProperties, deviceTwin.Handler(),
		dispatcher.Buffered(16), dispatcher.Logged())

	if hubClient != nil {
		deviceTwin.SetReporter(hubClient)
		if err := hubClient.Connect(); err != nil {
			Logger.Warn("Hub connect failed, retrying in background", "error", err)
		}
		defer hubClient.Close()
	}

	if err := deviceTwin.Start(ctx); err != nil {
		Logger.Warn("Initial property report failed", "error", err)
	}

	monCfg := config.GetMonitorConfig()
	if monCfg.Enabled {
		monitorService := monitor.NewService(monitor.Dependencies{
			Source:     sim,
			Logger:     Logger.With("component", "monitor"),
			StatusFile: monCfg.StatusFile,
			Interval:   monCfg.Interval,
		})
		if err := monitorService.Start(); err != nil {
			Logger.Warn("Failed to start status monitor", "error", err)
		}
		defer monitorService.Stop()
	}

	// The control server must be down before the deferred closes run, so
	// no request reaches a closed dispatcher or storage backend.
	errCh := make(chan error, 1)
	ctlDone := make(chan struct{})
	ctlCfg := config.GetControlConfig()
	if ctlCfg.Enabled {
		ctl := control.NewServer(ctlCfg.Address, control.Handler{
			Dispatcher: eventDispatcher,
			Source:     sim,
			Metrics:    collector.Handler(),
			Logger:     Logger.With("component", "control"),
		})
		go func() {
			defer close(ctlDone)
			if err := ctl.Run(ctx); err != nil {
				errCh <- err
				stop()
			}
		}()
		Logger.Info("Control API listening", "address", ctlCfg.Address)
	} else {
		close(ctlDone)
	}

	simErr := sim.Run(ctx)
	<-ctlDone
	if simErr != nil {
		return simErr
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			return err
		}
	default:
	}
	return nil
}
