package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/celestial-simulator/core"
	"github.com/signalsfoundry/celestial-simulator/internal/config"
	"github.com/signalsfoundry/celestial-simulator/internal/logging"
	"github.com/signalsfoundry/celestial-simulator/internal/observability"
	"github.com/signalsfoundry/celestial-simulator/internal/scripting"
	"github.com/signalsfoundry/celestial-simulator/kb"
	"github.com/signalsfoundry/celestial-simulator/timectrl"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	scenePath := flag.String("scene", "", "scene file to load (overrides scene.path)")
	duration := flag.Duration("duration", 0, "total simulation duration (overrides sim.duration)")
	tick := flag.Duration("tick", 0, "tick interval (overrides sim.tick)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides metrics.addr)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *scenePath != "" {
		cfg.Scene.Path = *scenePath
	}
	if *duration > 0 {
		cfg.Sim.Duration = *duration
	}
	if *tick > 0 {
		cfg.Sim.Tick = *tick
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	log := logging.New(cfg.Logging())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, runDeps{log: log, out: os.Stdout}); err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
}

type runDeps struct {
	log      logging.Logger
	out      io.Writer
	registry prometheus.Registerer
	// scripts overrides the shared script context.
	scripts *scripting.Context
}

func run(ctx context.Context, cfg *config.Config, deps runDeps) error {
	log := deps.log
	if log == nil {
		log = logging.Noop()
	}
	out := deps.out
	if out == nil {
		out = io.Discard
	}
	ctx = logging.ContextWithLogger(ctx, log)

	if cfg.Scene.Path == "" {
		return errors.New("no scene given; set scene.path or -scene")
	}

	collector, err := observability.NewModelCollector(deps.registry)
	if err != nil {
		return fmt.Errorf("initialise metrics collector: %w", err)
	}
	metricsSrv := serveMetrics(cfg.Metrics.Addr, collector, log)
	defer stopMetrics(metricsSrv)

	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingSettings(), log)
	if err != nil {
		return fmt.Errorf("initialise tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	scene, err := core.LoadSceneFile(cfg.Scene.Path)
	if err != nil {
		return err
	}

	sc := deps.scripts
	if sc == nil {
		sc, err = sharedScripts(cfg, collector, log)
		if err != nil {
			return err
		}
	}

	factory := core.NewFactory(
		core.WithFactoryScriptContext(sc),
		core.WithFactoryLogger(log),
		core.WithFactoryMetrics(collector),
	)
	catalog := kb.NewCatalog(kb.WithBodyCountRecorder(collector))
	defer catalog.Clear()

	summary, err := core.BuildCatalog(ctx, catalog, factory, scene, log)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loaded scene %s: %d bodies, %d skipped, %d identity fallbacks\n",
		cfg.Scene.Path, len(summary.BodyIDs), len(summary.Skipped), len(summary.FallbackRotations))

	engine := core.NewSimulationEngine(catalog,
		core.WithEngineLogger(log),
		core.WithEngineMetrics(collector),
	)
	engine.RegisterFrameListener(func(jd float64, _ int) {
		for _, b := range catalog.ListBodies() {
			s, _ := catalog.State(b.Definition.ID)
			fmt.Fprintf(out, "[JD %.6f] %-12s pos=(%.3f, %.3f, %.3f) q=(%.4f, %.4f, %.4f, %.4f)\n",
				jd, b.Definition.ID,
				s.Position.X, s.Position.Y, s.Position.Z,
				s.Orientation.W, s.Orientation.X, s.Orientation.Y, s.Orientation.Z,
			)
		}
	})

	start, err := cfg.StartTime(time.Now().UTC())
	if err != nil {
		return err
	}
	mode := timectrl.RealTime
	if cfg.Sim.Accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(start, cfg.Sim.Tick, mode)
	engine.Attach(tc)

	// Render the initial frame before the clock starts ticking.
	engine.Step(start)

	log.Info(ctx, "starting simulation",
		logging.String("start", start.Format(time.RFC3339)),
		logging.String("duration", cfg.Sim.Duration.String()),
		logging.String("tick", cfg.Sim.Tick.String()),
	)
	<-tc.StartUntil(cfg.Sim.Duration, ctx.Done())
	log.Info(ctx, "simulation complete", logging.Float64("jd", tc.NowJD()))
	return nil
}

// sharedScripts configures and returns the process-wide script context. The
// scene's own directory is searched for modules after the configured paths.
func sharedScripts(cfg *config.Config, collector *observability.ModelCollector, log logging.Logger) (*scripting.Context, error) {
	paths := append([]string(nil), cfg.Scripting.ModulePaths...)
	if dir := filepath.Dir(cfg.Scene.Path); dir != "" {
		paths = append(paths, filepath.Join(dir, "?.lua"))
	}
	if err := scripting.Configure(scripting.Config{
		Enabled:     cfg.Scripting.Enabled,
		ModulePaths: paths,
		Preload:     cfg.Scripting.Preload,
		Logger:      log,
		Metrics:     collector,
	}); err != nil {
		return nil, err
	}
	return scripting.Shared()
}

func serveMetrics(addr string, collector *observability.ModelCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Warn(context.Background(), "failed to listen for metrics", logging.String("addr", addr), logging.Err(err))
		return nil
	}
	srv := &http.Server{
		Addr:    lis.Addr().String(),
		Handler: mux,
	}

	go func() {
		if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", srv.Addr))
	return srv
}

func stopMetrics(srv *http.Server) {
	if srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
