package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/a2a"
	"github.com/dusk-indust/formcrew/internal/agent"
	"github.com/dusk-indust/formcrew/internal/config"
	"github.com/dusk-indust/formcrew/internal/events"
	"github.com/dusk-indust/formcrew/internal/feedback"
	"github.com/dusk-indust/formcrew/internal/images"
	"github.com/dusk-indust/formcrew/internal/llm"
	"github.com/dusk-indust/formcrew/internal/logging"
	"github.com/dusk-indust/formcrew/internal/memory"
	"github.com/dusk-indust/formcrew/internal/orchestrator"
	"github.com/dusk-indust/formcrew/internal/store"
	"github.com/dusk-indust/formcrew/internal/summary"
	"github.com/dusk-indust/formcrew/internal/tools"
)

// app owns the long-lived components of one command invocation. Components
// are built on first use and closed in reverse order by Close.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store *store.SQLStore

	gen     llm.Generator
	mem     memory.Store
	sink    events.Sink
	closers []func() error
}

func loadConfig(opts *options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	return cfg, nil
}

// newApp loads the configuration, builds the logger and opens the store.
func newApp(ctx context.Context, opts *options) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{cfg: cfg, log: log, store: st}
	a.onClose(st.Close)
	return a, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases every component in reverse creation order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.log.Sync()
	return errors.Join(errs...)
}

func (a *app) generator(ctx context.Context) (llm.Generator, error) {
	if a.gen != nil {
		return a.gen, nil
	}
	switch a.cfg.LLM.Provider {
	case "a2a":
		client := a2a.NewHTTPClient(a2a.WithTimeout(a.cfg.LLM.Timeout))
		g := llm.NewA2AGenerator(client, a.cfg.LLM.A2AEndpoint, a.log)
		dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		card, err := g.Discover(dctx)
		cancel()
		if err != nil {
			a.log.Warn("crew agent card unavailable", zap.String("endpoint", a.cfg.LLM.A2AEndpoint), zap.Error(err))
		} else {
			a.log.Info("crew agent discovered", zap.String("name", card.Name), zap.String("version", card.Version))
		}
		a.gen = g
	default:
		g, err := llm.NewGenAIGenerator(ctx, a.cfg.LLM, a.log)
		if err != nil {
			return nil, err
		}
		a.gen = g
	}
	return a.gen, nil
}

func (a *app) memory() (memory.Store, error) {
	if a.mem != nil {
		return a.mem, nil
	}
	mem, err := memory.Open(a.cfg.Memory)
	if err != nil {
		return nil, err
	}
	a.mem = mem
	a.onClose(mem.Close)
	return mem, nil
}

// events builds the configured sinks behind one non-blocking fan-out.
func (a *app) events() (events.Sink, error) {
	if a.sink != nil {
		return a.sink, nil
	}
	sinks := events.Multi{events.NewLogSink(a.log)}
	if a.cfg.Events.RedisURL != "" {
		rs, err := events.NewRedisSink(a.cfg.Events.RedisURL, a.cfg.Events.Stream, a.log)
		if err != nil {
			return nil, err
		}
		a.onClose(rs.Close)
		sinks = append(sinks, rs)
	}
	if a.cfg.Events.Table {
		sinks = append(sinks, events.NewSQLSink(a.store.DB(), a.store.Driver(), a.log))
	}
	async := events.NewAsync(sinks, a.cfg.Events.Buffer)
	a.onClose(func() error {
		async.Close()
		return nil
	})
	a.sink = async
	return async, nil
}

func (a *app) knowledge() (*tools.KnowledgeConfig, error) {
	mem, err := a.memory()
	if err != nil {
		return nil, err
	}
	return tools.NewKnowledgeConfig(mem, a.cfg.Memory), nil
}

// flow wires the planner, matcher, section runner and downstream generators
// into a Flow.
func (a *app) flow(ctx context.Context) (*orchestrator.Flow, error) {
	gen, err := a.generator(ctx)
	if err != nil {
		return nil, err
	}
	sink, err := a.events()
	if err != nil {
		return nil, err
	}
	knowledge, err := a.knowledge()
	if err != nil {
		return nil, err
	}

	mcpTools := tools.NewMCPToolset(a.cfg.MCPServers, tools.StreamableTransport, a.log)
	a.onClose(mcpTools.Close)
	loader := tools.NewLoader(knowledge, tools.NewDocumentSearch(a.cfg.Documents), mcpTools, a.log)

	uploader, err := images.NewUploader(ctx, a.cfg.Images, a.log)
	if err != nil {
		return nil, err
	}
	spools := images.NewFactory(a.cfg.Images, uploader, a.log)

	exec := agent.NewExecutor(gen, events.UnitHooks(sink))
	catalog := agent.NewCatalog(a.store, a.log)

	return orchestrator.NewFlow(orchestrator.FlowDeps{
		Store:      a.store,
		Summarizer: summary.New(gen, a.log),
		Planner:    orchestrator.NewPlanner(exec, a.log),
		Matcher:    orchestrator.NewMatcher(exec, catalog, a.log),
		Runner:     orchestrator.NewRunner(exec, loader, a.cfg.Flow.MaxParallelSections, a.log),
		Downstream: orchestrator.NewDownstream(exec, a.log),
		Images: func(todoID string) (orchestrator.ImageStore, error) {
			spool, err := spools.Open(todoID)
			if err != nil {
				return nil, err
			}
			return spool, nil
		},
		Events: sink,
		Log:    a.log,
	}), nil
}

func (a *app) analyzer(ctx context.Context) (*feedback.Analyzer, error) {
	gen, err := a.generator(ctx)
	if err != nil {
		return nil, err
	}
	mem, err := a.memory()
	if err != nil {
		return nil, err
	}
	synth := feedback.NewSynthesizer(gen, mem, a.log)
	return feedback.NewAnalyzer(synth, a.store, agent.NewCatalog(a.store, a.log), a.log), nil
}
