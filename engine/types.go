// Package engine holds the state that the engine publishes to stream subscribers.
package engine

import (
	"encoding/json"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
)

// State is the view of every pool after the commit numbered Seq.
type State struct {
	Seq       uint64           `json:"seq"`
	Timestamp uint64           `json:"timestamp"` // unix nanoseconds of the commit
	Pools     []clamm.PoolView `json:"pools"`
}

// Pool returns the view of id, if present.
func (s *State) Pool(id clamm.PoolID) (clamm.PoolView, bool) {
	for _, p := range s.Pools {
		if p.ID == id {
			return p, true
		}
	}
	return clamm.PoolView{}, false
}

// Clone deep copies the state.
func (s *State) Clone() *State {
	c := &State{Seq: s.Seq, Timestamp: s.Timestamp, Pools: make([]clamm.PoolView, len(s.Pools))}
	for i, p := range s.Pools {
		c.Pools[i] = clamm.DeepCopyPoolView(p)
	}
	return c
}

// Event types carried by the pool stream.
const (
	EventFull = "full"
	EventDiff = "diff"
)

// SubscriptionEvent is the wrapper object sent to stream subscribers.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}
