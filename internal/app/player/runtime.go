package player

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/mpcore/internal/domain/media"
	"github.com/osa030/mpcore/internal/infra/logger"
	"github.com/osa030/mpcore/internal/pipeline"
)

// RuntimeConfig holds process-wide settings.
type RuntimeConfig struct {
	Log    logger.Config
	Player Config
}

// Runtime is the process-wide context players are created from. A nil or closed
// runtime refuses to create players.
type Runtime struct {
	cfg     RuntimeConfig
	factory pipeline.Factory
	restore func() error // undoes logger.Init

	mu      sync.Mutex
	closed  bool
	players map[uuid.UUID]*Player
}

// NewRuntime initializes logging and returns a runtime creating players on factory.
func NewRuntime(cfg RuntimeConfig, factory pipeline.Factory) (*Runtime, error) {
	if factory == nil {
		return nil, errors.Wrap(media.ErrInvalidArguments, "pipeline factory is nil")
	}
	restore, err := logger.Init(cfg.Log)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize logger")
	}
	zlog.Info().Msgf("runtime initialized: version=%s level=%s", Version, cfg.Log.Level)
	return &Runtime{
		cfg:     cfg,
		factory: factory,
		restore: restore,
		players: make(map[uuid.UUID]*Player),
	}, nil
}

// NewPlayer creates a player owned by the runtime.
func (r *Runtime) NewPlayer() (*Player, error) {
	if r == nil {
		return nil, errors.Wrap(media.ErrNotInitialized, "runtime is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.Wrap(media.ErrNotInitialized, "runtime closed")
	}
	p, err := New(r.factory, r.cfg.Player)
	if err != nil {
		return nil, err
	}
	p.onRelease = r.forget
	r.players[p.ID()] = p
	return p, nil
}

// Player returns the live player with id.
func (r *Runtime) Player(id uuid.UUID) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	return p, ok
}

// Players returns every live player.
func (r *Runtime) Players() []*Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Values(r.players)
}

func (r *Runtime) forget(p *Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, p.ID())
}

// Close releases every player and then undoes the logging setup of NewRuntime. Closing
// twice is an error.
func (r *Runtime) Close(ctx context.Context) error {
	if r == nil {
		return errors.Wrap(media.ErrNotInitialized, "runtime is nil")
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.Wrap(media.ErrNotInitialized, "runtime already closed")
	}
	r.closed = true
	players := lo.Values(r.players)
	r.mu.Unlock()

	var errs error
	for _, p := range players {
		if err := p.Release(ctx); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	zlog.Info().Msgf("runtime closed: players=%d", len(players))
	if err := r.restore(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "failed to close log output"))
	}
	return errs
}
