package notification

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/osa030/mpcore/internal/domain/media"
)

var (
	ErrNilObserver       = errors.Mark(errors.New("observer is nil"), media.ErrInvalidArguments)
	ErrDuplicateObserver = errors.Mark(errors.New("observer already registered"), media.ErrInvalidArguments)
)

type entry[T comparable] struct {
	observer T
	active   atomic.Bool
}

// Registry holds the three observer sets in registration order.
//
// Dispatch works on a copy of the set taken under the read lock and re-checks each entry
// right before invoking it, so callbacks may register or unregister observers (including
// themselves) without deadlocking, and an unregistered observer gets nothing afterwards.
type Registry struct {
	mu     sync.RWMutex
	player []*entry[PlayerObserver]
	audio  []*entry[AudioFrameObserver]
	video  []*entry[VideoFrameObserver]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

func register[T comparable](mu *sync.RWMutex, set *[]*entry[T], o T) error {
	var zero T
	if o == zero {
		return ErrNilObserver
	}
	mu.Lock()
	defer mu.Unlock()
	if lo.ContainsBy(*set, func(e *entry[T]) bool { return e.observer == o }) {
		return ErrDuplicateObserver
	}
	e := &entry[T]{observer: o}
	e.active.Store(true)
	*set = append(*set, e)
	return nil
}

func unregister[T comparable](mu *sync.RWMutex, set *[]*entry[T], o T) {
	mu.Lock()
	defer mu.Unlock()
	*set = lo.Reject(*set, func(e *entry[T], _ int) bool {
		if e.observer == o {
			e.active.Store(false)
			return true
		}
		return false
	})
}

func each[T comparable](mu *sync.RWMutex, set *[]*entry[T], fn func(T)) {
	mu.RLock()
	snapshot := make([]*entry[T], len(*set))
	copy(snapshot, *set)
	mu.RUnlock()

	for _, e := range snapshot {
		if !e.active.Load() {
			continue
		}
		fn(e.observer)
	}
}

// RegisterPlayerObserver adds o.
func (r *Registry) RegisterPlayerObserver(o PlayerObserver) error {
	return register(&r.mu, &r.player, o)
}

// UnregisterPlayerObserver removes o. Unknown observers are ignored.
func (r *Registry) UnregisterPlayerObserver(o PlayerObserver) {
	unregister(&r.mu, &r.player, o)
}

// RegisterAudioFrameObserver adds o.
func (r *Registry) RegisterAudioFrameObserver(o AudioFrameObserver) error {
	return register(&r.mu, &r.audio, o)
}

// UnregisterAudioFrameObserver removes o. Unknown observers are ignored.
func (r *Registry) UnregisterAudioFrameObserver(o AudioFrameObserver) {
	unregister(&r.mu, &r.audio, o)
}

// RegisterVideoFrameObserver adds o.
func (r *Registry) RegisterVideoFrameObserver(o VideoFrameObserver) error {
	return register(&r.mu, &r.video, o)
}

// UnregisterVideoFrameObserver removes o. Unknown observers are ignored.
func (r *Registry) UnregisterVideoFrameObserver(o VideoFrameObserver) {
	unregister(&r.mu, &r.video, o)
}

// EachPlayer invokes fn for every live player observer.
func (r *Registry) EachPlayer(fn func(PlayerObserver)) {
	each(&r.mu, &r.player, fn)
}

// EachAudio invokes fn for every live audio frame observer.
func (r *Registry) EachAudio(fn func(AudioFrameObserver)) {
	each(&r.mu, &r.audio, fn)
}

// EachVideo invokes fn for every live video frame observer.
func (r *Registry) EachVideo(fn func(VideoFrameObserver)) {
	each(&r.mu, &r.video, fn)
}

// HasFrameObservers reports whether any audio or video observer is registered.
func (r *Registry) HasFrameObservers() (audio, video bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.audio) > 0, len(r.video) > 0
}

// Len returns the number of registered player observers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.player)
}

// Clear unregisters every observer.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.player {
		e.active.Store(false)
	}
	for _, e := range r.audio {
		e.active.Store(false)
	}
	for _, e := range r.video {
		e.active.Store(false)
	}
	r.player = nil
	r.audio = nil
	r.video = nil
}
