package progress

import "sync"

// State is the live snapshot of a mode's execution, tagged by mode name.
// Each mode defines its own concrete state struct; stores and subscribers
// treat values opaquely. Implementations must be treated as immutable:
// publishers replace the whole value rather than mutating nested fields.
type State interface {
	// Mode returns the name of the mode that owns this state.
	Mode() string
}

// Store holds the current turn's streaming bookkeeping and live mode state.
type Store struct {
	mu sync.RWMutex

	instanceIDs []string
	models      map[string]string // instance ID -> model ID
	state       State

	subs   map[int]chan State
	nextID int
}

// NewStore creates an empty progress store.
func NewStore() *Store {
	return &Store{
		models: make(map[string]string),
		subs:   make(map[int]chan State),
	}
}

// InitStreaming records which instances participate in the current turn.
// It clears any state left over from a previous turn.
func (s *Store) InitStreaming(instanceIDs []string, models map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instanceIDs = append([]string(nil), instanceIDs...)
	s.models = make(map[string]string, len(models))
	for id, model := range models {
		s.models[id] = model
	}
	s.state = nil
}

// SetModeState replaces the current mode state and notifies subscribers.
func (s *Store) SetModeState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	// Sends happen under the read lock so a concurrent Subscribe cancel
	// cannot close a channel mid-send. Sends never block.
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- state:
		default: // slow subscriber, drop this transition
		}
	}
}

// UpdateModeState applies fn to the current state and publishes the result.
// fn receives the current state (possibly nil) and must return the next
// state; it must not mutate the value it receives.
func (s *Store) UpdateModeState(fn func(State) State) {
	s.mu.Lock()
	next := fn(s.state)
	s.mu.Unlock()

	s.SetModeState(next)
}

// ModeState returns the most recently published state, or nil if no mode
// has published yet this turn.
func (s *Store) ModeState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// InstanceIDs returns the instance roster for the current turn.
func (s *Store) InstanceIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.instanceIDs...)
}

// ModelFor returns the model ID behind an instance ID.
func (s *Store) ModelFor(instanceID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.models[instanceID]
}

// Subscribe registers a buffered channel that receives every published
// state transition. The returned cancel function removes the subscription
// and closes the channel.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan State, 64)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}
