package history

import (
	"context"
	"fmt"

	"hvacautomation/internal/ha"
)

// EntityClient is the Home Assistant access an EntityStore needs
type EntityClient interface {
	GetState(entityID string) (*ha.State, error)
	SetInputText(name string, value string) error
}

// EntityStore keeps each ring comma-joined in an input_text entity named by the key
type EntityStore struct {
	client   EntityClient
	capacity int
}

func NewEntityStore(client EntityClient, capacity int) *EntityStore {
	return &EntityStore{client: client, capacity: capacity}
}

// Load reads the ring from the entity. A missing entity is an error; a fresh
// helper reporting unknown or unavailable counts as empty.
func (s *EntityStore) Load(ctx context.Context, key string) (*Ring, error) {
	state, err := s.client.GetState(key)
	if err != nil {
		return nil, fmt.Errorf("failed to load history from %s: %w", key, err)
	}

	switch state.State {
	case "unknown", "unavailable":
		return NewRing(s.capacity), nil
	}
	return Decode(s.capacity, state.State), nil
}

func (s *EntityStore) Save(ctx context.Context, key string, ring *Ring) error {
	if err := s.client.SetInputText(key, ring.Encode()); err != nil {
		return fmt.Errorf("failed to save history to %s: %w", key, err)
	}
	return nil
}
