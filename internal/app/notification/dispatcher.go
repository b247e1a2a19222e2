package notification

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mpcore/internal/app/worker"
)

// Origin is the source a notification was raised for. Notifications whose origin has been
// detached by the time they are delivered are dropped.
type Origin interface {
	Detached() bool
}

// Dispatcher delivers player notifications in posting order on its own goroutine.
type Dispatcher struct {
	registry *Registry
	loop     *worker.Loop
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		loop:     worker.New("notification"),
	}
}

// Post enqueues fn to be invoked for every player observer. origin may be nil.
// It reports false when the dispatcher is closed and fn was dropped.
func (d *Dispatcher) Post(origin Origin, fn func(PlayerObserver)) bool {
	err := d.loop.Post(func() {
		if detached(origin) {
			return
		}
		d.registry.EachPlayer(func(o PlayerObserver) {
			if detached(origin) {
				return
			}
			fn(o)
		})
	})
	if err != nil {
		zlog.Debug().Msgf("notification dropped: err=%v", err)
		return false
	}
	return true
}

// Flush blocks until everything posted so far has been delivered.
func (d *Dispatcher) Flush(ctx context.Context) error {
	return d.loop.Flush(ctx)
}

// Close delivers what is queued and stops the dispatcher.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.loop.Close()
	return d.loop.Wait(ctx)
}

func detached(origin Origin) bool {
	return origin != nil && origin.Detached()
}
