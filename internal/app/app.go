package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"newsbot/internal/api"
	"newsbot/internal/automation"
	"newsbot/internal/config"
	"newsbot/internal/eventbus"
	"newsbot/internal/feed"
	"newsbot/internal/generate"
	"newsbot/internal/mailer"
	"newsbot/internal/metrics"
	"newsbot/internal/newsletter"
	"newsbot/internal/publish"
	rtsup "newsbot/internal/runtime/supervisor"
	"newsbot/internal/storage"
	"newsbot/internal/task/engine"
	"newsbot/internal/task/scheduler"
	logx "newsbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	metrics *metrics.Metrics
	engine  *engine.Service
	sched   *scheduler.Service
	svc     *automation.Service
	server  *api.Server
}

// NewApp loads the config file and wires every component. Nothing runs
// until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	a, err := build(cfg, logSvc, log)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	a.cfgm = cfgm
	return a, nil
}

func build(cfg *config.Config, logSvc *logx.Service, log logx.Logger) (*App, error) {
	comp := log.Component
	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, comp("storage"))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	fail := func(err error) (*App, error) {
		_ = store.Close()
		return nil, err
	}

	fc, err := mapFeedConfig(cfg)
	if err != nil {
		return fail(err)
	}
	fetcher := feed.New(fc, nil, comp("feed"))

	gc, err := mapGenerateConfig(cfg)
	if err != nil {
		return fail(err)
	}
	pc, err := mapPublishConfig(cfg)
	if err != nil {
		return fail(err)
	}
	deps := newsletter.Deps{
		Store:      store,
		Generators: generate.NewFactory(gc, comp("generate")),
		Publish:    publish.New(pc, nil, comp("publish")),
		Bus:        bus,
	}
	mc, mailOK, err := mapMailerConfig(cfg)
	if err != nil {
		return fail(err)
	}
	if mailOK {
		deps.Mail = mailer.New(mc, comp("mailer"))
	}
	asm := newsletter.New(newsletter.Config{PublicBaseURL: publicBaseURL(cfg)}, deps, comp("newsletter"))

	ec, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return fail(err)
	}
	eng := engine.New(ec, comp("taskengine"), bus)

	// The registry and the runner refer to each other: the registry runs
	// schedules through the runner, the runner reads the registry's zone.
	var runner *automation.Runner
	sched := scheduler.New(mapSchedulerConfig(cfg), eng, func(ctx context.Context, id string) error {
		return runner.RunByID(ctx, id)
	}, store, comp("scheduler"))
	runner = automation.NewRunner(automation.RunnerDeps{
		Store:    store,
		Fetcher:  fetcher,
		Assembly: asm,
		Bus:      bus,
		Location: sched.Location,
	}, comp("runner"))

	svc := automation.NewService(automation.ServiceDeps{
		Store:       store,
		Runner:      runner,
		Registry:    sched,
		Engine:      eng,
		Fetcher:     fetcher,
		Newsletters: asm,
	}, comp("automation"))

	apiCfg, err := mapAPIConfig(cfg)
	if err != nil {
		return fail(err)
	}
	h := api.NewHandler(svc, sched, comp("api"))
	var m *metrics.Metrics
	var server *api.Server
	if metricsEnabled(cfg) {
		m = metrics.New()
		server = api.NewServer(apiCfg, h, m.Handler(), log)
	} else {
		server = api.NewServer(apiCfg, h, nil, log)
	}

	return &App{
		log:     log.Component("app"),
		logs:    logSvc,
		bus:     bus,
		store:   store,
		metrics: m,
		engine:  eng,
		sched:   sched,
		svc:     svc,
		server:  server,
	}, nil
}

// Done is closed when the app supervisor is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.engine.Start(runCtx)
	if err := a.svc.Start(runCtx); err != nil {
		return err
	}
	a.sched.Start(runCtx)
	a.server.Start(runCtx)

	if a.metrics != nil {
		a.sup.Go("metrics.consume", func(c context.Context) error {
			if err := a.metrics.Consume(c, a.bus); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	a.sup.Go0("eventbus.log", a.logEvents)

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.Component("config"))
		a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
			_, err := mapAll(cfg)
			return err
		})
		sub := a.cfgm.Subscribe(8)
		a.sup.Go0("config.reload", func(c context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			a.reloadLoop(c, sub)
		})
		a.sup.Go("config.watch", a.cfgm.Watch)
	}

	a.log.Info("app started", logx.String("timezone", a.sched.Location().String()))
	return nil
}

func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

// Stop shuts components down in reverse start order. Each step is bounded
// so one component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	a.stopStep(ctx, "api", 3*time.Second, func(c context.Context) error { a.server.Stop(c); return nil })
	a.stopStep(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.stopStep(ctx, "taskengine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	a.stopStep(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })
	a.stopStep(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) stopStep(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < limit {
			limit = rem
		}
	}
	if limit <= 0 {
		a.log.Warn("stop step skipped: deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}

// mapped is every hot-reloadable setting derived from one config.
type mapped struct {
	log    logx.Config
	engine engine.Config
	sched  scheduler.Config
	api    api.Config
}

// mapAll maps every section, so a config that cannot be wired is rejected
// before it is committed.
func mapAll(cfg *config.Config) (mapped, error) {
	var out mapped
	var err error
	out.log = mapLogConfig(cfg)
	out.sched = mapSchedulerConfig(cfg)
	if out.engine, err = mapTaskEngineConfig(cfg); err != nil {
		return out, err
	}
	if out.api, err = mapAPIConfig(cfg); err != nil {
		return out, err
	}
	if _, err = mapStorageConfig(cfg); err != nil {
		return out, err
	}
	if _, err = mapFeedConfig(cfg); err != nil {
		return out, err
	}
	if _, err = mapGenerateConfig(cfg); err != nil {
		return out, err
	}
	if _, err = mapPublishConfig(cfg); err != nil {
		return out, err
	}
	if _, _, err = mapMailerConfig(cfg); err != nil {
		return out, err
	}
	return out, nil
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts; only the newest config matters.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, last, cfg)
			last = cfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, cfg *config.Config) {
	m, err := mapAll(cfg)
	if err != nil {
		a.log.Warn("config not applied", logx.Err(err))
		return
	}
	sections, attrs := config.SummarizeConfigChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	if err := a.logs.Apply(m.log); err != nil {
		a.log.Warn("log file sink disabled", logx.Err(err))
	}
	a.engine.Apply(ctx, m.engine)
	a.sched.Apply(m.sched)
	a.server.Reconfigure(ctx, m.api)

	for _, s := range sections {
		if config.RequiresRestart(s) {
			a.log.Warn("config section changed; restart required", logx.String("section", s))
		}
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: sections})

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
