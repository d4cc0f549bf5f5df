package ha

import (
	"encoding/json"
	"time"
)

// Message is the envelope of every websocket frame exchanged with Home Assistant
type Message struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	Event   *Event          `json:"event,omitempty"`
}

// Error is the error body of a failed result frame
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthMessage is sent in reply to auth_required
type AuthMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
}

// Event is the payload of an "event" frame
type Event struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Origin    string          `json:"origin"`
	TimeFired time.Time       `json:"time_fired"`
}

// StateChangedEvent is the data of a state_changed event
type StateChangedEvent struct {
	EntityID string `json:"entity_id"`
	NewState *State `json:"new_state"`
	OldState *State `json:"old_state"`
}

// State is the current state of one entity
type State struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
	LastUpdated time.Time              `json:"last_updated"`
	Context     *Context               `json:"context,omitempty"`
}

// Context identifies what caused a state change
type Context struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// CallServiceRequest is a call_service command
type CallServiceRequest struct {
	ID          int                    `json:"id"`
	Type        string                 `json:"type"`
	Domain      string                 `json:"domain"`
	Service     string                 `json:"service"`
	ServiceData map[string]interface{} `json:"service_data,omitempty"`
}

// GetStatesRequest is a get_states command
type GetStatesRequest struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
}

// SubscribeEventsRequest is a subscribe_events command
type SubscribeEventsRequest struct {
	ID        int    `json:"id"`
	Type      string `json:"type"`
	EventType string `json:"event_type,omitempty"`
}

// StateChangeHandler is called for every state_changed event of a subscribed entity
type StateChangeHandler func(entityID string, oldState, newState *State)

// Subscription is an active state change subscription
type Subscription interface {
	Unsubscribe() error
}

// subscriberEntry pairs a handler with the ID used to remove it again
type subscriberEntry struct {
	subID   int
	handler StateChangeHandler
}

// subscriberSet is the per-entity handler table shared by Client and MockClient
type subscriberSet struct {
	entries map[string][]subscriberEntry
	nextID  int
}

func newSubscriberSet() subscriberSet {
	return subscriberSet{entries: make(map[string][]subscriberEntry)}
}

func (s *subscriberSet) add(entityID string, handler StateChangeHandler) int {
	id := s.nextID
	s.nextID++
	s.entries[entityID] = append(s.entries[entityID], subscriberEntry{subID: id, handler: handler})
	return id
}

func (s *subscriberSet) remove(entityID string, subID int) {
	entries, ok := s.entries[entityID]
	if !ok {
		return
	}
	for i, entry := range entries {
		if entry.subID != subID {
			continue
		}
		s.entries[entityID] = append(entries[:i:i], entries[i+1:]...)
		if len(s.entries[entityID]) == 0 {
			delete(s.entries, entityID)
		}
		return
	}
}

func (s *subscriberSet) handlers(entityID string) []subscriberEntry {
	return append([]subscriberEntry(nil), s.entries[entityID]...)
}

func (s *subscriberSet) reset() {
	s.entries = make(map[string][]subscriberEntry)
}

// entitySubscription removes one handler through the owner's unsubscribe func
type entitySubscription struct {
	entityID string
	subID    int
	remove   func(entityID string, subID int)
}

func (s *entitySubscription) Unsubscribe() error {
	s.remove(s.entityID, s.subID)
	return nil
}
