package ha

import (
	"fmt"
	"sync"
	"time"
)

// MockClient implements HAClient in memory for tests
type MockClient struct {
	states   map[string]*State
	statesMu sync.RWMutex

	subs   subscriberSet
	subsMu sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	serviceCalls []ServiceCall
	serviceErr   error
	callsMu      sync.Mutex
}

// ServiceCall records one CallService invocation
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]interface{}
	Time    time.Time
}

// NewMockClient creates an empty, disconnected mock client
func NewMockClient() *MockClient {
	return &MockClient{
		states:       make(map[string]*State),
		subs:         newSubscriberSet(),
		serviceCalls: make([]ServiceCall, 0),
	}
}

func (m *MockClient) Connect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	m.connected = true
	return nil
}

func (m *MockClient) Disconnect() error {
	m.connMu.Lock()
	m.connected = false
	m.connMu.Unlock()

	m.subsMu.Lock()
	m.subs.reset()
	m.subsMu.Unlock()
	return nil
}

func (m *MockClient) IsConnected() bool {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.connected
}

// GetState returns a copy of the stored state, or ErrEntityNotFound
func (m *MockClient) GetState(entityID string) (*State, error) {
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()

	state, ok := m.states[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}
	copied := *state
	return &copied, nil
}

func (m *MockClient) GetAllStates() ([]*State, error) {
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()

	states := make([]*State, 0, len(m.states))
	for _, state := range m.states {
		copied := *state
		states = append(states, &copied)
	}
	return states, nil
}

// CallService records the call and applies its effect to the entity it targets
func (m *MockClient) CallService(domain, service string, data map[string]interface{}) error {
	m.callsMu.Lock()
	m.serviceCalls = append(m.serviceCalls, ServiceCall{
		Domain:  domain,
		Service: service,
		Data:    data,
		Time:    time.Now(),
	})
	err := m.serviceErr
	m.callsMu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to call %s.%s: %w", domain, service, err)
	}

	if entityID, ok := data["entity_id"].(string); ok {
		if value, ok := serviceCallValue(domain, service, data); ok {
			m.SimulateStateChange(entityID, value)
		}
	}
	return nil
}

// SetServiceError makes every following CallService fail with err (nil clears it)
func (m *MockClient) SetServiceError(err error) {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.serviceErr = err
}

func (m *MockClient) SubscribeStateChanges(entityID string, handler StateChangeHandler) (Subscription, error) {
	m.subsMu.Lock()
	subID := m.subs.add(entityID, handler)
	m.subsMu.Unlock()

	return &entitySubscription{entityID: entityID, subID: subID, remove: m.unsubscribe}, nil
}

func (m *MockClient) unsubscribe(entityID string, subID int) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.subs.remove(entityID, subID)
}

// SubscriberCount returns how many handlers are registered for entityID
func (m *MockClient) SubscriberCount(entityID string) int {
	m.subsMu.RLock()
	defer m.subsMu.RUnlock()
	return len(m.subs.entries[entityID])
}

func (m *MockClient) SetInputText(name string, value string) error {
	return m.CallService("input_text", "set_value", map[string]interface{}{
		"entity_id": prefixed("input_text", name),
		"value":     value,
	})
}

// SetState stores a state and notifies subscribers
func (m *MockClient) SetState(entityID string, stateValue string, attributes map[string]interface{}) {
	now := time.Now()
	newState := &State{
		EntityID:    entityID,
		State:       stateValue,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}

	m.statesMu.Lock()
	oldState := m.states[entityID]
	m.states[entityID] = newState
	m.statesMu.Unlock()

	m.notifySubscribers(entityID, oldState, newState)
}

// SimulateStateChange changes only the state value, keeping the attributes
func (m *MockClient) SimulateStateChange(entityID string, newStateValue string) {
	attributes := make(map[string]interface{})

	m.statesMu.RLock()
	if old, ok := m.states[entityID]; ok && old.Attributes != nil {
		attributes = old.Attributes
	}
	m.statesMu.RUnlock()

	m.SetState(entityID, newStateValue, attributes)
}

// RemoveState deletes an entity so that GetState reports it missing
func (m *MockClient) RemoveState(entityID string) {
	m.statesMu.Lock()
	defer m.statesMu.Unlock()
	delete(m.states, entityID)
}

// GetServiceCalls returns a copy of the recorded service calls
func (m *MockClient) GetServiceCalls() []ServiceCall {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	calls := make([]ServiceCall, len(m.serviceCalls))
	copy(calls, m.serviceCalls)
	return calls
}

// ClearServiceCalls forgets the recorded service calls
func (m *MockClient) ClearServiceCalls() {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.serviceCalls = make([]ServiceCall, 0)
}

func (m *MockClient) notifySubscribers(entityID string, oldState, newState *State) {
	m.subsMu.RLock()
	entries := m.subs.handlers(entityID)
	m.subsMu.RUnlock()

	for _, entry := range entries {
		entry.handler(entityID, oldState, newState)
	}
}

// serviceCallValue derives the new state string a write service would produce
func serviceCallValue(domain, service string, data map[string]interface{}) (string, bool) {
	var key string
	switch service {
	case "set_value":
		key = "value"
	case "select_option":
		key = "option"
	case "set_position":
		key = "position"
	case "set_temperature":
		key = "temperature"
	case "set_speed":
		key = "speed"
	case "volume_set":
		key = "volume_level"
	case "turn_on":
		if domain == "light" {
			return "on", true
		}
		return "", false
	default:
		return "", false
	}

	value, ok := data[key]
	if !ok {
		return "", false
	}
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		return fmt.Sprintf("%.2f", v), true
	default:
		return fmt.Sprint(v), true
	}
}

func prefixed(domain, name string) string {
	if len(name) > len(domain) && name[:len(domain)+1] == domain+"." {
		return name
	}
	return domain + "." + name
}
