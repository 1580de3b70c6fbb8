package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/harun/warden/internal/config"
	"github.com/harun/warden/internal/logger"
	"github.com/harun/warden/internal/observability"
	"github.com/harun/warden/internal/tracing"
	"github.com/harun/warden/pkg/agentctx"
	"github.com/harun/warden/pkg/runtime"
	"github.com/harun/warden/pkg/transcript"
)

// Daemon wires the warden runtime together: transcript store, context
// factory, runtime manager, metrics endpoint, and the archive schedule.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	store    *transcript.Store
	archiver *transcript.Archiver
	factory  runtime.Factory
	manager  *runtime.Manager

	metricsServer *http.Server
	scheduler     *cron.Cron

	wg sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status describes the daemon state
type Status struct {
	Running          bool          `json:"running"`
	StartTime        time.Time     `json:"start_time,omitempty"`
	Uptime           time.Duration `json:"uptime,omitempty"`
	ActiveIdentities int           `json:"active_identities"`
	ActiveInflight   int           `json:"active_inflight"`
}

var newFactory = func(store *transcript.Store) runtime.Factory {
	return agentctx.NewFactory(store)
}

// New creates a daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			log.Info().Msg("Tracing initialized successfully")
		}
	}

	store, err := transcript.NewStore(cfg.Transcripts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript store: %w", err)
	}
	d.store = store

	archiver, err := transcript.NewArchiver(store, cfg.Transcripts.ArchiveDir, transcript.DefaultArchiveAge)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript archiver: %w", err)
	}
	d.archiver = archiver

	d.factory = newFactory(store)
	d.manager = runtime.NewManager(cfg, d.factory, runtime.WithLogger(log.With("runtime")))

	return d, nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	log := d.logger.With("daemon").With().Str("trace_id", traceID).Logger()
	log.Info().Msg("Starting warden daemon")

	if d.config.Metrics.Enabled {
		if err := d.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		log.Info().Str("addr", d.config.Metrics.ListenAddr).Msg("Metrics server started")
	}

	if schedule := d.config.Transcripts.ArchiveSchedule; schedule != "" {
		scheduler := cron.New()
		_, err := scheduler.AddFunc(schedule, func() {
			archived, err := d.archiver.Run()
			if err != nil {
				log.Error().Err(err).Msg("Transcript archive run failed")
				return
			}
			if archived > 0 {
				log.Info().Int("archived", archived).Msg("Transcript archive run completed")
			}
		})
		if err != nil {
			return fmt.Errorf("invalid archive schedule %q: %w", schedule, err)
		}
		scheduler.Start()
		d.scheduler = scheduler
		log.Info().Str("schedule", schedule).Msg("Transcript archiver scheduled")
	}

	log.Info().
		Int("identity_limit", d.manager.IdentityLimit()).
		Int("inflight_limit", d.manager.InflightLimit()).
		Msg("Daemon started successfully")

	return nil
}

func (d *Daemon) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	d.metricsServer = &http.Server{
		Addr:              d.config.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return nil
}

// Stop stops the daemon gracefully: new work is rejected, in-flight
// operations are allowed to finish, and every live context is torn down.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	log := d.logger.With("daemon").With().Str("trace_id", traceID).Logger()
	log.Info().Msg("Stopping warden daemon")

	if d.scheduler != nil {
		<-d.scheduler.Stop().Done()
		log.Info().Msg("Transcript archiver stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.config.Runtime.TeardownTimeout+5*time.Second)
	defer cancel()

	if err := d.manager.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Runtime shutdown finished with errors")
	} else {
		log.Info().Msg("Runtime shut down")
	}

	if d.metricsServer != nil {
		srvCtx, srvCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Shutdown(srvCtx); err != nil {
			log.Error().Err(err).Msg("Failed to stop metrics server")
		}
		srvCancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("All goroutines stopped")
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if d.tracingEnabled {
		traceCtx, traceCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(traceCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		traceCancel()
		d.tracingEnabled = false
	}

	log.Info().Msg("Daemon stopped successfully")
	return nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:          d.running,
		ActiveIdentities: d.manager.ActiveIdentities(),
		ActiveInflight:   d.manager.ActiveInflight(),
	}

	if d.running {
		status.StartTime = d.startTime
		status.Uptime = time.Since(d.startTime)
	}

	return status
}

// Runtime returns the runtime manager
func (d *Daemon) Runtime() *runtime.Manager {
	return d.manager
}

// Transcripts returns the transcript store
func (d *Daemon) Transcripts() *transcript.Store {
	return d.store
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// Wait blocks until the daemon receives SIGINT or SIGTERM, then stops it
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}
