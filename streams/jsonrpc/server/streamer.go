// Package server publishes the engine state to JSON-RPC subscribers: a full
// state on subscribe, then one diff per committed pool change.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/defistate/clamm-engine-go/differ"
	"github.com/defistate/clamm-engine-go/engine"
	"github.com/defistate/clamm-engine-go/protocols/clamm"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
)

// Logger is the structured logger used by the Streamer and the Service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the dependencies of a Streamer.
type Config struct {
	Logger   Logger
	Registry prometheus.Registerer
	// BufferSize is the number of events queued per subscriber.
	BufferSize uint
}

func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	return nil
}

type subscriber struct {
	events chan *engine.SubscriptionEvent
	// resync is set when an event was dropped; the next event is then a full state.
	resync bool
}

// Streamer keeps the latest engine state and fans it out to subscribers.
// It implements the manager's Snapshotter.
type Streamer struct {
	logger     Logger
	differ     *differ.StateDiffer
	bufferSize uint

	mu     sync.Mutex
	state  *engine.State
	nextID uint64
	subs   map[uint64]*subscriber
}

// NewStreamer returns a streamer whose initial state is empty at seq 0.
func NewStreamer(cfg Config) (*Streamer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	d, err := differ.NewStateDiffer(&differ.StateDifferConfig{Registry: cfg.Registry, Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("failed to create state differ: %w", err)
	}
	return &Streamer{
		logger:     cfg.Logger,
		differ:     d,
		bufferSize: cfg.BufferSize,
		state:      &engine.State{Timestamp: uint64(time.Now().UnixNano())},
		subs:       make(map[uint64]*subscriber),
	}, nil
}

// State returns a copy of the latest published state.
func (s *Streamer) State() *engine.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// SavePool publishes a committed pool view as the next state and broadcasts the diff.
func (s *Streamer) SavePool(_ context.Context, view clamm.PoolView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := &engine.State{
		Seq:       s.state.Seq + 1,
		Timestamp: uint64(time.Now().UnixNano()),
		Pools:     make([]clamm.PoolView, 0, len(s.state.Pools)+1),
	}
	replaced := false
	for _, p := range s.state.Pools {
		if p.ID == view.ID {
			next.Pools = append(next.Pools, clamm.DeepCopyPoolView(view))
			replaced = true
			continue
		}
		next.Pools = append(next.Pools, p)
	}
	if !replaced {
		next.Pools = append(next.Pools, clamm.DeepCopyPoolView(view))
		sort.Slice(next.Pools, func(i, j int) bool {
			return next.Pools[i].ID.Cmp(next.Pools[j].ID) < 0
		})
	}

	diff, err := s.differ.Diff(s.state, next)
	if err != nil {
		return err
	}
	// an unchanged view keeps the sequence so that later diffs chain onto what subscribers hold
	if diff.Pools.IsEmpty() {
		return nil
	}
	s.state = next

	diffEvent, err := newEvent(engine.EventDiff, diff)
	if err != nil {
		return err
	}
	var fullEvent *engine.SubscriptionEvent
	for id, sub := range s.subs {
		ev := diffEvent
		if sub.resync {
			if fullEvent == nil {
				if fullEvent, err = newEvent(engine.EventFull, s.state); err != nil {
					return err
				}
			}
			ev = fullEvent
		}
		select {
		case sub.events <- ev:
			sub.resync = false
		default:
			sub.resync = true
			s.logger.Warn("subscriber is lagging, dropping event", "subscriber", id, "seq", next.Seq)
		}
	}
	return nil
}

func newEvent(kind string, payload any) (*engine.SubscriptionEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}
	return &engine.SubscriptionEvent{Type: kind, Payload: raw, SentAt: time.Now().UnixNano()}, nil
}

// subscribe registers a subscriber whose first event is the current full state.
func (s *Streamer) subscribe() (uint64, *subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := newEvent(engine.EventFull, s.state)
	if err != nil {
		return 0, nil, err
	}
	sub := &subscriber{events: make(chan *engine.SubscriptionEvent, s.bufferSize+1)}
	sub.events <- full
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	return id, sub, nil
}

func (s *Streamer) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// Subscribers returns the number of live subscriptions.
func (s *Streamer) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// PoolStreamAPI is the RPC receiver of the pool stream. It is separate from
// Streamer so that SavePool is not callable over RPC.
type PoolStreamAPI struct {
	streamer *Streamer
}

func NewPoolStreamAPI(s *Streamer) *PoolStreamAPI {
	return &PoolStreamAPI{streamer: s}
}

// SubscribePoolStream is served as the "subscribePoolStream" subscription.
func (api *PoolStreamAPI) SubscribePoolStream(ctx context.Context) (*rpc.Subscription, error) {
	s := api.streamer
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	id, sub, err := s.subscribe()
	if err != nil {
		return nil, err
	}
	rpcSub := notifier.CreateSubscription()
	s.logger.Info("stream subscriber joined", "subscriber", id, "rpcID", rpcSub.ID)

	go func() {
		defer s.unsubscribe(id)
		for {
			select {
			case ev := <-sub.events:
				if err := notifier.Notify(rpcSub.ID, ev); err != nil {
					s.logger.Warn("failed to notify subscriber", "subscriber", id, "error", err)
					return
				}
			case <-rpcSub.Err():
				s.logger.Info("stream subscriber left", "subscriber", id)
				return
			}
		}
	}()
	return rpcSub, nil
}
