// Package app wires the dispatch core to its infrastructure for one duty
// session.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/regiondispatch/api"
	"github.com/kilianp07/regiondispatch/config"
	"github.com/kilianp07/regiondispatch/core/calllog"
	"github.com/kilianp07/regiondispatch/core/catalog"
	"github.com/kilianp07/regiondispatch/core/dispatch"
	"github.com/kilianp07/regiondispatch/core/events"
	coremetrics "github.com/kilianp07/regiondispatch/core/metrics"
	coremon "github.com/kilianp07/regiondispatch/core/monitoring"
	"github.com/kilianp07/regiondispatch/core/generator"
	"github.com/kilianp07/regiondispatch/core/model"
	"github.com/kilianp07/regiondispatch/core/notify"
	"github.com/kilianp07/regiondispatch/core/radio"
	"github.com/kilianp07/regiondispatch/core/world"
	"github.com/kilianp07/regiondispatch/infra/kafka"
	"github.com/kilianp07/regiondispatch/infra/logger"
	"github.com/kilianp07/regiondispatch/infra/metrics"
	"github.com/kilianp07/regiondispatch/infra/monitoring"
	"github.com/kilianp07/regiondispatch/infra/mqtt"
	"github.com/kilianp07/regiondispatch/internal/eventbus"
)

// ErrUnknownCommand is returned by HandleCommand for unsupported commands.
var ErrUnknownCommand = errors.New("unknown command")

// ErrOnDuty is returned when a duty session is already running.
var ErrOnDuty = errors.New("duty already started")

// Player commands accepted by HandleCommand.
const (
	CommandAccept  = "accept"
	CommandDecline = "decline"
	CommandInvoke  = "invoke"
	CommandNext    = "next"
	CommandArrived = "arrived"
	CommandClear   = "complete"
)

// Service orchestrates a duty session.
type Service struct {
	Engine    *dispatch.Engine
	Generator *generator.Generator
	Clock     *world.SimClock
	Signals   *world.Signals
	Scanner   *radio.Scanner

	cfg     *config.Config
	log     logger.Logger
	monitor coremon.Monitor
	bus     *eventbus.Bus[events.Event]
	store   calllog.Store
	sink    coremetrics.MetricsSink
	pub     notify.Publisher
	api     *api.Server

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds every component from cfg. Nothing runs until StartDuty.
func New(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	bus := eventbus.New[events.Event]()
	clock, err := world.NewSimClock(cfg.World, logger.New("world"), bus)
	if err != nil {
		return nil, fmt.Errorf("world clock: %w", err)
	}
	res := catalog.NewReservations()
	engine, err := dispatch.NewEngine(cfg.Dispatch, res, clock, logger.New("dispatch"), bus)
	if err != nil {
		return nil, fmt.Errorf("dispatch engine: %w", err)
	}
	gen, err := generator.New(cfg.Generator, cat, res, clock, engine, logger.New("generator"))
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	store, err := calllog.New(cfg.CallLog)
	if err != nil {
		return nil, fmt.Errorf("call log: %w", err)
	}

	signals := &world.Signals{}
	engine.SetMetrics(sink)
	engine.SetCallLog(store)
	engine.SetSynthesizer(gen)
	engine.SetWorkGate(signals)
	engine.SetMonitor(mon)
	gen.SetBus(bus)
	gen.SetMonitor(mon)
	if r, ok := sink.(coremetrics.CrimeLevelRecorder); ok {
		gen.SetMetrics(r)
	}

	s := &Service{
		Engine:    engine,
		Generator: gen,
		Clock:     clock,
		Signals:   signals,
		cfg:       cfg,
		log:       logg,
		monitor:   mon,
		bus:       bus,
		store:     store,
		sink:      sink,
	}
	if !cfg.Radio.Disabled {
		s.Scanner, err = radio.NewScanner(signals, radio.LogSpeaker{Log: logger.New("radio")}, logger.New("radio"))
		if err != nil {
			return nil, fmt.Errorf("scanner: %w", err)
		}
	}
	if err := s.setupNotifier(); err != nil {
		return nil, err
	}
	if cfg.API.Enabled {
		s.api, err = api.New(engine, store, logger.NewZerolog("api"))
		if err != nil {
			return nil, fmt.Errorf("api: %w", err)
		}
	}
	return s, nil
}

func (s *Service) setupNotifier() error {
	switch s.cfg.Notifier.Backend {
	case "mqtt":
		client, err := mqtt.NewPahoClient(s.cfg.MQTT, s.monitor)
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		client.OnCommand(func(c mqtt.Command) {
			if err := s.HandleCommand(c.Command); err != nil {
				s.log.Warnf("command %s: %v", c.Command, err)
			}
		})
		s.pub = client
	case "kafka":
		p, err := kafka.NewPublisher(s.cfg.Kafka, logger.New("kafka"))
		if err != nil {
			return fmt.Errorf("kafka publisher: %w", err)
		}
		s.pub = p
	}
	return nil
}

// StartDuty puts the roster on duty and starts every loop. It returns
// immediately; loops stop on StopDuty or when ctx is cancelled.
func (s *Service) StartDuty(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrOnDuty
	}

	home := s.cfg.Units.Player.Home.Position()
	units, err := dispatch.BuildRoster(s.cfg.Units, func() model.Position { return home })
	if err != nil {
		return fmt.Errorf("roster: %w", err)
	}
	for _, u := range units {
		if err := s.Engine.AddUnit(u); err != nil {
			return fmt.Errorf("add unit %s: %w", u.ID, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	periods := s.Clock.SubscribePeriods()
	s.goGuarded("world", func() { s.Clock.Run(ctx) })
	s.goGuarded("dispatch", func() { s.Engine.Run(ctx) })
	s.goGuarded("periods", func() { s.Generator.FollowPeriods(ctx, periods) })
	s.goGuarded("generator", func() { s.Generator.Run(ctx) })

	if s.Scanner != nil {
		sub := s.bus.Subscribe()
		s.goGuarded("radio-follow", func() { s.Scanner.Follow(ctx, sub) })
		s.goGuarded("radio", func() { s.Scanner.Run(ctx, s.cfg.Radio.PumpInterval()) })
	}
	if s.pub != nil {
		fwd, err := notify.NewForwarder(s.pub, logger.New("notify"), s.monitor, s.cfg.Notifier.Timeout(), s.cfg.Notifier.Events...)
		if err != nil {
			cancel()
			return fmt.Errorf("forwarder: %w", err)
		}
		sub := s.bus.Subscribe()
		s.goGuarded("notify", func() { fwd.Run(ctx, sub) })
	}
	if s.cfg.Units.Player.Enabled && s.cfg.Units.Player.Autopilot {
		sub := s.bus.Subscribe()
		interval := s.cfg.Dispatch.TickInterval()
		s.goGuarded("autopilot", func() { s.autopilot(ctx, sub, interval) })
	}
	if s.api != nil {
		s.goGuarded("api", func() {
			if err := s.api.Serve(ctx, s.cfg.API.Addr); err != nil {
				s.log.Errorf("api: %v", err)
				s.monitor.CaptureException(err, map[string]string{"module": "api"})
			}
		})
	} else if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		s.goGuarded("prometheus", func() {
			if err := metrics.StartPromServer(ctx, addr, logger.New("metrics")); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		})
	}
	s.log.Infof("duty started with %d units, clock at %s (%s)", len(units), s.Clock.Now().Format(time.Kitchen), s.Clock.Period())
	return nil
}

func (s *Service) goGuarded(component string, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = coremon.Guard(s.monitor, s.log, component, fn)
	}()
}

// autopilot accepts every call offered to the player. The bus may drop an
// offer for a slow subscriber, so the engine is also polled every interval.
func (s *Service) autopilot(ctx context.Context, sub <-chan events.Event, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.acceptOffer()
		case ev, ok := <-sub:
			if !ok {
				sub = nil
				continue
			}
			if _, offered := ev.(events.PlayerCallOffered); offered {
				s.acceptOffer()
			}
		}
	}
}

func (s *Service) acceptOffer() {
	if _, err := s.Engine.AcceptCall(); err != nil && !errors.Is(err, dispatch.ErrNoOffer) && !errors.Is(err, dispatch.ErrNoPlayer) {
		s.log.Warnf("autopilot accept: %v", err)
	}
}

// HandleCommand applies a player command received from the host.
func (s *Service) HandleCommand(name string) error {
	switch name {
	case CommandAccept:
		_, err := s.Engine.AcceptCall()
		return err
	case CommandDecline:
		_, err := s.Engine.DeclineCall()
		return err
	case CommandInvoke:
		_, err := s.Engine.InvokeCalloutForPlayer()
		return err
	case CommandNext:
		return s.Engine.InvokeNextCalloutForPlayer()
	case CommandArrived, CommandClear:
		p := s.Engine.Player()
		if p == nil {
			return dispatch.ErrNoPlayer
		}
		if name == CommandArrived {
			return s.Engine.UnitArrived(p)
		}
		return s.Engine.UnitCompleted(p, events.ClosureResolved)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
}

// StopDuty stops every loop, clears the queues and releases resources.
// It does nothing when no duty is running.
func (s *Service) StopDuty() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	s.wg.Wait()
	s.Engine.EndDuty()

	var errs []error
	if s.pub != nil {
		errs = append(errs, s.pub.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	closeSink(s.sink)
	s.monitor.Flush(2 * time.Second)
	s.log.Infof("duty ended")
	return errors.Join(errs...)
}

func closeSink(sink coremetrics.MetricsSink) {
	switch v := sink.(type) {
	case *coremetrics.MultiSink:
		for _, inner := range v.Sinks {
			closeSink(inner)
		}
	case interface{ Close() }:
		v.Close()
	}
}

// Run starts a duty session and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.StartDuty(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.StopDuty()
}
