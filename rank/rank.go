// Package rank assembles a leaderboard service from functional options.
package rank

import (
	"context"
	"log/slog"

	"rankkit/adapters/memory"
	"rankkit/core"
	"rankkit/engine"
	"rankkit/integrations/webhook"
	"rankkit/leaderboard"
	"rankkit/realtime"
)

// Option configures the service builder.
type Option func(*config)

type boardDecl struct {
	name     string
	polarity core.Polarity
}

type config struct {
	opener   leaderboard.Opener
	mode     engine.DispatchMode
	busOpts  []engine.BusOption
	hub      *realtime.Hub
	webhooks []*webhook.Sink
	boards   []boardDecl
	logger   *slog.Logger
	observer leaderboard.Observer
}

// WithOpener sets the store backend.
func WithOpener(o leaderboard.Opener) Option { return func(c *config) { c.opener = o } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode, opts ...engine.BusOption) Option {
	return func(c *config) {
		c.mode = m
		c.busOpts = opts
	}
}

// WithRealtime wires a realtime hub to receive all mutation events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithWebhook forwards all mutation events to the sink.
func WithWebhook(s *webhook.Sink) Option {
	return func(c *config) {
		if s != nil {
			c.webhooks = append(c.webhooks, s)
		}
	}
}

// WithBoard declares a board when the service is built.
func WithBoard(name string, p core.Polarity) Option {
	return func(c *config) { c.boards = append(c.boards, boardDecl{name: name, polarity: p}) }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// WithObserver installs a round-trip observer on every board.
func WithObserver(o leaderboard.Observer) Option { return func(c *config) { c.observer = o } }

// New builds a configured Service. If not provided, defaults are used:
//   - opener: in-memory registry
//   - dispatch: async
//
// Boards are declared in option order; the first failure is returned.
func New(ctx context.Context, opts ...Option) (*engine.Service, error) {
	cfg := &config{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.opener == nil {
		cfg.opener = memory.NewRegistry()
	}
	bus := engine.NewEventBus(cfg.mode, cfg.busOpts...)
	svc := engine.NewService(cfg.opener, bus,
		engine.WithLogger(cfg.logger),
		engine.WithObserver(cfg.observer))
	if cfg.hub != nil {
		bus.SubscribeAll(cfg.hub.Broadcast)
	}
	for _, s := range cfg.webhooks {
		bus.SubscribeAll(s.OnEvent)
	}
	for _, b := range cfg.boards {
		if _, err := svc.Declare(ctx, b.name, b.polarity); err != nil {
			svc.Close()
			return nil, err
		}
	}
	return svc, nil
}
