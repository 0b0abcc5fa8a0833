package timeline

import (
	"context"
	"errors"
	"iter"
	"reflect"
	"sync"

	"github.com/reelnotes/backend/internal/models"
)

// ErrSubscriptionClosed is returned by Next once Close has been called.
var ErrSubscriptionClosed = errors.New("subscription closed")

type snapshotLoader func(ctx context.Context) ([]models.Comment, error)

// Broker fans change notifications out to live subscriptions in this process.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*Subscription]struct{})}
}

// Publish marks every subscription on the project as needing a fresh snapshot.
func (b *Broker) Publish(_ context.Context, projectID string) {
	b.mu.Lock()
	targets := make([]*Subscription, 0, len(b.subs[projectID]))
	for sub := range b.subs[projectID] {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		sub.signal()
	}
}

// Count reports the live subscriptions on a project.
func (b *Broker) Count(projectID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[projectID])
}

func (b *Broker) register(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[sub.projectID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[sub.projectID] = set
	}
	set[sub] = struct{}{}
}

func (b *Broker) unregister(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[sub.projectID]
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.projectID)
	}
}

// Subscription is a live view of a project's comments. The first Next call
// returns the snapshot taken at subscribe time; each later call blocks until a
// mutation in scope and returns one snapshot per mutation.
//
// The broker signals on every change to the project. A filtered subscription
// drops reloads whose result equals the last snapshot it delivered, so
// changes outside its range or commenter never reach the caller. Any
// subscription drops a first reload equal to the initial snapshot; that
// change was already part of it.
type Subscription struct {
	broker    *Broker
	projectID string
	filtered  bool
	load      snapshotLoader

	mu          sync.Mutex
	initial     []models.Comment
	primed      bool
	last        []models.Comment
	lastInitial bool
	pending     int
	closed      bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newSubscription(broker *Broker, projectID string, filter models.CommentFilter, load snapshotLoader) *Subscription {
	return &Subscription{
		broker:    broker,
		projectID: projectID,
		filtered:  !filter.IsZero(),
		load:      load,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// ProjectID names the project the subscription watches.
func (s *Subscription) ProjectID() string {
	return s.projectID
}

func (s *Subscription) prime(snapshot []models.Comment) {
	s.mu.Lock()
	s.initial = snapshot
	s.primed = true
	s.mu.Unlock()
}

func (s *Subscription) signal() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending++
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Next returns the next snapshot. A reload that finishes after Close is dropped.
func (s *Subscription) Next(ctx context.Context) ([]models.Comment, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrSubscriptionClosed
		}
		if s.primed {
			snapshot := s.initial
			s.initial, s.primed = nil, false
			s.last, s.lastInitial = snapshot, true
			s.mu.Unlock()
			return snapshot, nil
		}
		if s.pending > 0 {
			s.pending--
			s.mu.Unlock()

			snapshot, err := s.load(ctx)

			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return nil, ErrSubscriptionClosed
			}
			if err != nil {
				s.mu.Unlock()
				return nil, err
			}
			if (s.filtered || s.lastInitial) && reflect.DeepEqual(snapshot, s.last) {
				s.lastInitial = false
				s.mu.Unlock()
				continue
			}
			s.last, s.lastInitial = snapshot, false
			s.mu.Unlock()
			return snapshot, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, ErrSubscriptionClosed
		case <-s.wake:
		}
	}
}

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.initial, s.last = nil, nil
		s.pending = 0
		s.mu.Unlock()
		close(s.done)
		if s.broker != nil {
			s.broker.unregister(s)
		}
	})
}

// Snapshots ranges over the subscription until ctx ends or the loop body
// stops. The subscription is closed when iteration finishes.
func (s *Subscription) Snapshots(ctx context.Context) iter.Seq2[[]models.Comment, error] {
	return func(yield func([]models.Comment, error) bool) {
		defer s.Close()
		for {
			snapshot, err := s.Next(ctx)
			if errors.Is(err, ErrSubscriptionClosed) || ctx.Err() != nil {
				return
			}
			if !yield(snapshot, err) {
				return
			}
		}
	}
}
