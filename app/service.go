// Package app wires the control plane: store, trip lifecycle, zone manager,
// dispatch engine, task assigner, health monitor, router and transport.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/fleetcore/config"
	"github.com/kilianp07/fleetcore/core/assign"
	"github.com/kilianp07/fleetcore/core/commands"
	"github.com/kilianp07/fleetcore/core/dispatch"
	dispatchlog "github.com/kilianp07/fleetcore/core/dispatch/logging"
	"github.com/kilianp07/fleetcore/core/health"
	coremetrics "github.com/kilianp07/fleetcore/core/metrics"
	coremon "github.com/kilianp07/fleetcore/core/monitoring"
	"github.com/kilianp07/fleetcore/core/notify"
	"github.com/kilianp07/fleetcore/core/router"
	"github.com/kilianp07/fleetcore/core/routing"
	"github.com/kilianp07/fleetcore/core/scheduler"
	"github.com/kilianp07/fleetcore/core/store"
	"github.com/kilianp07/fleetcore/core/trip"
	"github.com/kilianp07/fleetcore/core/zone"
	"github.com/kilianp07/fleetcore/infra/logger"
	"github.com/kilianp07/fleetcore/infra/metrics"
	infmon "github.com/kilianp07/fleetcore/infra/monitoring"
	"github.com/kilianp07/fleetcore/infra/mqtt"
	"github.com/kilianp07/fleetcore/internal/eventbus"
)

// Transport carries commands and notifications to carriers and operators.
type Transport interface {
	commands.Sender
	notify.Sink
}

// server is a Transport that also delivers inbound messages.
type server interface {
	Serve(ctx context.Context, in mqtt.Inbound) error
}

// Service holds the wired components.
type Service struct {
	Store     store.Store
	Bus       *eventbus.Bus
	Notes     *eventbus.TypedBus[notify.Notification]
	Commander *commands.Commander
	Trips     *trip.Lifecycle
	Zones     *zone.Manager
	Engine    *dispatch.Engine
	Assigner  *assign.Assigner
	Health    *health.Monitor
	Router    *router.Router
	Scheduler *scheduler.Scheduler

	cfg       *config.Config
	transport Transport
	sink      coremetrics.MetricsSink
	logs      dispatchlog.LogStore
	log       logger.Logger
	wg        sync.WaitGroup
}

// New creates a Service from the configuration. The MQTT broker is used as
// transport when one is configured; otherwise commands are kept in memory.
func New(cfg *config.Config) (*Service, error) {
	var tr Transport
	if cfg.MQTT.Broker != "" {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		tr = client
	} else {
		logger.New("service").Warnf("no mqtt broker configured, commands stay in memory")
		tr = mqtt.NewMockPublisher()
	}
	return NewWithTransport(cfg, tr)
}

// NewWithTransport creates a Service sending through tr.
func NewWithTransport(cfg *config.Config, tr Transport) (*Service, error) {
	cfg.SetDefaults()
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logg := logger.New("service")

	mon, err := infmon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	st := store.NewMemoryStore()
	graph := routing.NewGraphOracle(cfg.Routing.SpeedMPS, cfg.Routing.SnapDistance)
	if cfg.SiteFile != "" {
		site, err := config.LoadSite(cfg.SiteFile)
		if err != nil {
			return nil, err
		}
		if err := site.Seed(context.Background(), st); err != nil {
			return nil, fmt.Errorf("seed site: %w", err)
		}
		site.LoadGraphs(graph)
		logg.Infof("site loaded: %d fleets, %d stations, %d carriers, %d zones",
			len(site.Fleets), len(site.Stations), len(site.Carriers), len(site.Zones))
	}
	var oracle routing.Oracle = graph
	if cfg.Routing.Cache {
		oracle = routing.NewCachedOracle(graph)
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	logs, err := dispatchlog.NewLogStore(cfg.Logging.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("dispatch log: %w", err)
	}

	bus := eventbus.New()
	notes := eventbus.NewTyped[notify.Notification]()
	notifier := notify.Multi{notify.BusSink{Bus: notes}, notify.LogSink{Log: logger.New("notify")}, tr}

	cmdr := commands.New(tr, cfg.Commands.ReplyTimeout(), logger.New("commands"))
	cmdr.OnResult(func(r commands.Result) {
		_ = coremetrics.RecordCommand(sink, coremetrics.CommandEvent{
			CommandID:    r.Command.ID,
			Carrier:      r.Command.Carrier,
			Kind:         string(r.Command.Kind),
			Acknowledged: r.Err == nil,
			Latency:      r.Latency,
			Time:         time.Now(),
		})
		if r.Err != nil {
			notify.Send(context.Background(), notifier, "commands", notify.LevelAlert,
				fmt.Sprintf("%s %s not acknowledged: %v", r.Command.Kind, r.Command.ID, r.Err), r.Command.Carrier)
		}
	})

	trips := trip.New(st, oracle, cmdr, trip.Options{
		Notify:  notifier,
		Bus:     bus,
		Metrics: sink,
		Logger:  logger.New("trip"),
	})
	zones := zone.NewManager(st, cfg.Zones, cmdr, bus, sink, logger.New("zone"))
	engine, err := dispatch.NewEngine(st, oracle, cfg.Dispatch, dispatch.Options{
		Logger:  logger.New("dispatch"),
		Metrics: sink,
		Logs:    logs,
		Bus:     bus,
	})
	if err != nil {
		return nil, err
	}
	assigner := assign.New(st, trips, logger.New("assign"))
	monitor := health.NewMonitor(st, cfg.Health, bus, notifier, logger.New("health"))

	rt, err := router.New(router.Deps{
		Store:    st,
		Trips:    trips,
		Zones:    zones,
		Assigner: assigner,
		Dispatch: engine,
		Health:   monitor,
		Replies:  cmdr,
		Logger:   logger.New("router"),
	}, cfg.Router)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(st, engine, bus, cfg.Scheduler, logger.New("scheduler"))

	svc := &Service{
		Store:     st,
		Bus:       bus,
		Notes:     notes,
		Commander: cmdr,
		Trips:     trips,
		Zones:     zones,
		Engine:    engine,
		Assigner:  assigner,
		Health:    monitor,
		Router:    rt,
		Scheduler: sched,
		cfg:       cfg,
		transport: tr,
		sink:      sink,
		logs:      logs,
		log:       logg,
	}
	sched.OnResult(svc.queueAssignments)
	return svc, nil
}

// queueAssignments asks the assigner to act on the carriers paired by a
// scheduled dispatch run. Carriers whose queue is full keep their trigger
// flag and are picked up by the assigner loop.
func (s *Service) queueAssignments(res []dispatch.Result) {
	for _, r := range res {
		for _, p := range r.Pairs {
			m := router.Message{Kind: router.KindAssignNextTask, Source: "scheduler", Carrier: p.Carrier,
				Payload: router.AssignNextTask{Carrier: p.Carrier}}
			if err := s.Router.TrySubmit(m); err != nil && !errors.Is(err, router.ErrNotStarted) {
				s.log.Warnf("queue assign_next_task for %s: %v", p.Carrier, err)
			}
		}
	}
}

// Run starts every component and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.Router.Start(ctx)
	defer s.Router.Stop()

	metrics.StartEventCollector(ctx, s.Bus, s.sink)
	s.spawn(func() { s.Commander.Run(ctx, s.cfg.Commands.SweepInterval()) })
	s.spawn(func() { s.Health.Run(ctx, s.cfg.Health.Interval()) })
	s.spawn(func() { s.Assigner.Loop(ctx, s.cfg.Scheduler.Interval()) })
	s.spawn(func() { s.Scheduler.Run(ctx) })
	if port := s.cfg.Metrics.PrometheusPort; port != "" {
		s.spawn(func() {
			if err := metrics.StartPromServer(ctx, port, nil); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		})
	}
	if srv, ok := s.transport.(server); ok {
		s.spawn(func() {
			if err := srv.Serve(ctx, s.Router); err != nil {
				s.log.Errorf("mqtt serve: %v", err)
			}
		})
	}
	s.log.Infof("control plane running")
	<-ctx.Done()
	s.wg.Wait()
	return nil
}

func (s *Service) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if err := s.logs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("dispatch log: %w", err))
	}
	if c, ok := s.transport.(interface{ Disconnect() }); ok {
		c.Disconnect()
	}
	s.Bus.Close()
	s.Notes.Close()
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
