package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/room302studio/coachartie2-sub006/internal/capability"
	"github.com/room302studio/coachartie2-sub006/internal/capability/builtin"
	"github.com/room302studio/coachartie2-sub006/internal/channel"
	"github.com/room302studio/coachartie2-sub006/internal/config"
	"github.com/room302studio/coachartie2-sub006/internal/conscience"
	"github.com/room302studio/coachartie2-sub006/internal/gateway"
	"github.com/room302studio/coachartie2-sub006/internal/luacap"
	"github.com/room302studio/coachartie2-sub006/internal/metrics"
	"github.com/room302studio/coachartie2-sub006/internal/orchestrator"
	"github.com/room302studio/coachartie2-sub006/internal/provider"
	"github.com/room302studio/coachartie2-sub006/internal/scheduler"
	"github.com/room302studio/coachartie2-sub006/internal/state"
	"github.com/room302studio/coachartie2-sub006/internal/triage"
	"github.com/room302studio/coachartie2-sub006/internal/version"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		os.Exit(0)
	}

	// Local development keeps secrets in .env; deployments set real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Logging)
	log.Info().Str("version", version.Get().Version).Msg("coach artie starting")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := state.Open(cfg.Store.Driver, cfg.Store.DSN, cfg.Store.DataDir)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer func() { _ = store.Close() }()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.Password,
		DB:       cfg.Queue.DB,
	})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to redis at %s: %w", cfg.Queue.RedisAddr, err)
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	llm := provider.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)

	registry := capability.NewRegistry()
	builtins := []capability.Descriptor{
		builtin.Calculator(),
		builtin.Memory(store),
		builtin.Web(&http.Client{Timeout: 20 * time.Second}),
	}
	for _, d := range builtins {
		if err := registry.Register(d); err != nil {
			return fmt.Errorf("registering %s: %w", d.Name, err)
		}
	}

	// Scheduled jobs travel through the same inbound queue as user messages.
	publish := func(ctx context.Context, msg channel.IncomingMessage) error {
		return channel.Publish(ctx, rdb, cfg.Queue.InboundKey, msg)
	}
	sched := scheduler.New(publish, cfg.Store.DataDir, cfg.Scheduler.Approvers, cfg.Scheduler.MaxJobsPerUser, log)
	if err := registry.Register(scheduler.Capability(sched)); err != nil {
		return fmt.Errorf("registering scheduler: %w", err)
	}

	if cfg.Lua.CapabilitiesDir != "" {
		scripted, err := luacap.LoadDir(cfg.Lua.CapabilitiesDir, log)
		if err != nil {
			return fmt.Errorf("loading scripted capabilities: %w", err)
		}
		for _, d := range scripted {
			if err := registry.Register(d); err != nil {
				log.Warn().Err(err).Str("capability", d.Name).Msg("skipping scripted capability")
			}
		}
	}

	reviewer := conscience.NewReviewer(llm, cfg.LLM.SafetyModel, log)
	selector := triage.NewSelector(llm, cfg.LLM.TriageModel, registry, m, log)

	orch := orchestrator.New(llm, cfg.LLM.Model, registry, reviewer, selector, m, orchestrator.Options{
		MaxIterations:     cfg.Orchestrator.MaxIterations,
		CapabilityTimeout: cfg.Orchestrator.CapabilityTimeout,
		FailureThreshold:  cfg.Orchestrator.FailureThreshold,
		ReflectionEnabled: cfg.Reflection.Enabled,
	}, log)
	if cfg.Reflection.Enabled {
		orch = orch.WithReflector(store)
	}

	staticJobs := make([]scheduler.Job, 0, len(cfg.Scheduler.Jobs))
	for _, j := range cfg.Scheduler.Jobs {
		staticJobs = append(staticJobs, scheduler.Job{
			Name:      j.Name,
			Spec:      j.Spec,
			Message:   j.Message,
			RespondTo: j.RespondTo,
		})
	}
	if err := sched.Start(staticJobs); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	consumer := channel.NewConsumer(rdb, cfg.Queue.InboundKey, orch.OrchestrateMessage, log)
	gw := gateway.New(cfg.Gateway.ListenAddr, orch.OrchestrateMessage, registry, promReg, log)

	errCh := make(chan error, 2)
	go func() { errCh <- consumer.Run(ctx) }()
	go func() { errCh <- gw.ListenAndServe() }()

	log.Info().
		Str("inbound_key", cfg.Queue.InboundKey).
		Str("gateway", cfg.Gateway.ListenAddr).
		Int("capabilities", registry.GetStats().Capabilities).
		Msg("coach artie ready")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return gw.Shutdown(shutdownCtx)
}
