// Command aide runs one assistant session from the command line: it wires the
// configured oracle, capability adapters, session store, and trace sinks, then
// drives the orchestration loop for a single user request and prints the
// transcript.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaisdk "github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	goredis "github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/log"

	"goa.design/aide/features/capability/calendar"
	"goa.design/aide/features/capability/httpapi"
	"goa.design/aide/features/capability/repohost"
	"goa.design/aide/features/capability/tasks"
	anthropicoracle "goa.design/aide/features/oracle/anthropic"
	"goa.design/aide/features/oracle/middleware"
	openaioracle "goa.design/aide/features/oracle/openai"
	sessionmongo "goa.design/aide/features/session/mongo"
	traceredis "goa.design/aide/features/trace/redis"
	"goa.design/aide/runtime/agent/capability"
	"goa.design/aide/runtime/agent/hooks"
	"goa.design/aide/runtime/agent/oracle"
	"goa.design/aide/runtime/agent/registry"
	"goa.design/aide/runtime/agent/runtime"
	"goa.design/aide/runtime/agent/session"
	"goa.design/aide/runtime/agent/session/inmem"
	"goa.design/aide/runtime/agent/telemetry"
)

func main() {
	var (
		configF  = flag.String("config", "aide.yaml", "Path to the YAML configuration file")
		requestF = flag.String("request", "", "User request to run")
		sessionF = flag.String("session", "", "Session identifier (generated when empty)")
		dbgF     = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	if strings.TrimSpace(*requestF) == "" {
		log.Fatalf(ctx, errors.New("missing request"), "usage: aide -config aide.yaml -request \"...\"")
	}

	cfg, err := LoadConfig(*configF)
	if err != nil {
		log.Fatalf(ctx, err, "invalid configuration")
	}

	// Cancel the session on SIGINT/SIGTERM so it ends as aborted instead of
	// being killed mid-write.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		log.Infof(ctx, "interrupt received, aborting session")
		cancel()
	}()

	orc, err := buildOracle(cfg.Oracle)
	if err != nil {
		log.Fatalf(ctx, err, "oracle setup failed")
	}

	reg := registry.New()
	adapters, err := buildAdapters(cfg.Providers, reg)
	if err != nil {
		log.Fatalf(ctx, err, "capability setup failed")
	}
	reg.Freeze()

	dispatcher, err := capability.NewDispatcher(adapters, cfg.DispatchTimeout.std())
	if err != nil {
		log.Fatalf(ctx, err, "dispatcher setup failed")
	}

	store, cleanup, err := buildStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf(ctx, err, "session store setup failed")
	}
	defer cleanup()

	trace, traceCleanup, err := buildTrace(cfg.Trace)
	if err != nil {
		log.Fatalf(ctx, err, "trace setup failed")
	}
	defer traceCleanup()

	runner, err := runtime.New(runtime.Config{
		Oracle:     orc,
		Registry:   reg,
		Dispatcher: dispatcher,
		Sessions:   store,
		Trace:      trace,
		Logger:     telemetry.NewClueLogger(),
		Metrics:    telemetry.NewClueMetrics(),
		Tracer:     telemetry.NewClueTracer(),
		Budgets: runtime.Budgets{
			MaxIterations: cfg.Budgets.MaxIterations,
			MaxDuration:   cfg.Budgets.MaxDuration.std(),
			OracleTimeout: cfg.Budgets.OracleTimeout.std(),
		},
	})
	if err != nil {
		log.Fatalf(ctx, err, "runtime setup failed")
	}

	opts := []runtime.StartOption{runtime.WithScopes(cfg.Scopes...)}
	if *sessionF != "" {
		opts = append(opts, runtime.WithSessionID(*sessionF))
	}
	sess, err := runner.StartSession(ctx, *requestF, opts...)
	if err != nil {
		log.Fatalf(ctx, err, "session failed")
	}

	printTranscript(sess)
	if sess.Status != session.StatusCompleted {
		os.Exit(1)
	}
}

// buildOracle constructs the configured provider oracle and wraps it with the
// adaptive rate limiter when one is configured.
func buildOracle(cfg OracleConfig) (oracle.Oracle, error) {
	var (
		orc oracle.Oracle
		err error
	)
	switch cfg.Provider {
	case "openai":
		model := openaisdk.ChatModel(cfg.Model)
		if model == "" {
			model = openaisdk.ChatModelGPT4o
		}
		client := openaisdk.NewClient(openaioption.WithAPIKey(cfg.APIKey))
		orc, err = openaioracle.New(openaioracle.Options{
			Client:       &client.Chat.Completions,
			Model:        model,
			SystemPrompt: cfg.SystemPrompt,
		})
	case "anthropic":
		model := anthropicsdk.Model(cfg.Model)
		if model == "" {
			model = anthropicsdk.ModelClaudeSonnet4_5_20250929
		}
		client := anthropicsdk.NewClient(anthropicoption.WithAPIKey(cfg.APIKey))
		orc, err = anthropicoracle.New(anthropicoracle.Options{
			Client:       &client.Messages,
			Model:        model,
			SystemPrompt: cfg.SystemPrompt,
		})
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.RateLimit.InitialTPM > 0 {
		limiter := middleware.NewAdaptiveRateLimiter(cfg.RateLimit.InitialTPM, cfg.RateLimit.MaxTPM)
		orc = limiter.Middleware()(orc)
	}
	return orc, nil
}

// buildAdapters constructs one adapter per configured provider and registers
// its tool specs.
func buildAdapters(cfg ProvidersConfig, reg *registry.Registry) ([]capability.Adapter, error) {
	var adapters []capability.Adapter

	if cfg.Calendar.BaseURL != "" {
		client, err := calendar.NewClient(httpapi.Options{BaseURL: cfg.Calendar.BaseURL, Token: cfg.Calendar.Token})
		if err != nil {
			return nil, fmt.Errorf("calendar client: %w", err)
		}
		adapter, err := calendar.NewAdapter(client)
		if err != nil {
			return nil, fmt.Errorf("calendar adapter: %w", err)
		}
		adapters = append(adapters, adapter)
		reg.MustRegister(calendar.Specs()...)
	}

	if cfg.Tasks.BaseURL != "" {
		client, err := tasks.NewClient(httpapi.Options{BaseURL: cfg.Tasks.BaseURL, Token: cfg.Tasks.Token})
		if err != nil {
			return nil, fmt.Errorf("tasks client: %w", err)
		}
		adapter, err := tasks.NewAdapter(client)
		if err != nil {
			return nil, fmt.Errorf("tasks adapter: %w", err)
		}
		adapters = append(adapters, adapter)
		reg.MustRegister(tasks.Specs()...)
	}

	if cfg.RepoHost.BaseURL != "" {
		client, err := repohost.NewClient(httpapi.Options{BaseURL: cfg.RepoHost.BaseURL, Token: cfg.RepoHost.Token}, cfg.RepoHost.User)
		if err != nil {
			return nil, fmt.Errorf("repohost client: %w", err)
		}
		adapter, err := repohost.NewAdapter(client)
		if err != nil {
			return nil, fmt.Errorf("repohost adapter: %w", err)
		}
		adapters = append(adapters, adapter)
		reg.MustRegister(repohost.Specs()...)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no capability providers configured")
	}
	return adapters, nil
}

// buildStore constructs the configured session store. The returned cleanup
// disconnects backing clients.
func buildStore(ctx context.Context, cfg StoreConfig) (session.Store, func(), error) {
	if cfg.Backend == "" || cfg.Backend == "memory" {
		return inmem.New(), func() {}, nil
	}

	client, err := mongodriver.Connect(mongooptions.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	store, err := sessionmongo.New(sessionmongo.Options{
		Client:     client,
		Database:   cfg.Mongo.Database,
		Collection: cfg.Mongo.Collection,
		Timeout:    cfg.Mongo.Timeout.std(),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}
	cleanup := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Errorf(ctx, err, "mongo disconnect failed")
		}
	}
	return store, cleanup, nil
}

// buildTrace constructs the trace bus with the configured sinks registered.
func buildTrace(cfg TraceConfig) (hooks.Bus, func(), error) {
	bus := hooks.NewBus()
	if cfg.Redis.Addr == "" {
		return bus, func() {}, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	sink, err := traceredis.New(traceredis.Options{
		Client: client,
		Stream: cfg.Redis.Stream,
		MaxLen: cfg.Redis.MaxLen,
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	if _, err := bus.Register(sink); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return bus, func() { _ = client.Close() }, nil
}

// printTranscript writes the session outcome and ledger to stdout.
func printTranscript(sess session.Session) {
	fmt.Printf("session %s: %s", sess.ID, sess.Status)
	if sess.Reason != "" {
		fmt.Printf(" (%s)", sess.Reason)
	}
	fmt.Printf(" after %d iteration(s)\n\n", sess.Iterations)
	for _, turn := range sess.Turns {
		label := string(turn.Role)
		if turn.ToolName != "" {
			label = fmt.Sprintf("%s[%s]", turn.Role, turn.ToolName)
		}
		fmt.Printf("%s: %s\n", label, turn.Content)
	}
}
