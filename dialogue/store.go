package dialogue

import (
	"errors"
	"sync"
)

// ErrDialogueNotFound is returned by stores when no dialogue exists under
// a label.
var ErrDialogueNotFound = errors.New("dialogue not found")

// Store abstracts dialogue persistence for a Dialogues collection. Keys
// are dialogue labels; keys are unique and unordered. Implementations must
// be safe for concurrent use.
type Store interface {
	// Add registers a dialogue under its current label.
	Add(d *Dialogue) error

	// Get retrieves the dialogue stored under label.
	// Returns ErrDialogueNotFound when absent.
	Get(label Label) (*Dialogue, error)

	// Remove evicts the dialogue stored under label.
	Remove(label Label) error

	// Save persists the dialogue's current state after an update.
	Save(d *Dialogue) error

	// SetIncomplete records that the incomplete label has been superseded
	// by the complete one.
	SetIncomplete(incomplete, complete Label) error

	// LatestLabel resolves a possibly superseded label to its latest
	// version.
	LatestLabel(label Label) Label

	// Close releases any resources held by the store.
	Close() error
}

// MemoryStore is the default in-process store.
type MemoryStore struct {
	mu         sync.RWMutex
	dialogues  map[string]*Dialogue
	incomplete map[string]Label
}

// NewMemoryStore creates an empty in-memory dialogue store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		dialogues:  make(map[string]*Dialogue),
		incomplete: make(map[string]Label),
	}
}

// Add registers a dialogue under its current label.
func (s *MemoryStore) Add(d *Dialogue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := d.Label().String()
	if _, exists := s.dialogues[key]; exists {
		return errors.New("dialogue label already present")
	}
	s.dialogues[key] = d
	return nil
}

// Get retrieves the dialogue stored under label.
func (s *MemoryStore) Get(label Label) (*Dialogue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.dialogues[label.String()]
	if !ok {
		return nil, ErrDialogueNotFound
	}
	return d, nil
}

// Remove evicts the dialogue stored under label.
func (s *MemoryStore) Remove(label Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dialogues, label.String())
	return nil
}

// Save is a no-op: the store holds live pointers.
func (s *MemoryStore) Save(*Dialogue) error { return nil }

// SetIncomplete records the supersession of an incomplete label.
func (s *MemoryStore) SetIncomplete(incomplete, complete Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incomplete[incomplete.String()] = complete
	return nil
}

// LatestLabel resolves a possibly superseded label to its latest version.
func (s *MemoryStore) LatestLabel(label Label) Label {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if complete, ok := s.incomplete[label.String()]; ok {
		return complete
	}
	return label
}

// Len returns the number of live dialogues.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dialogues)
}

// Close releases the store's maps.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogues = make(map[string]*Dialogue)
	s.incomplete = make(map[string]Label)
	return nil
}
