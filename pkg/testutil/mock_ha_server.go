// Package testutil provides a mock Home Assistant websocket server for end to
// end tests of the rules against the real client.
package testutil

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"hvacautomation/internal/ha"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connWrapper wraps a WebSocket connection with its write mutex
type connWrapper struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (w *connWrapper) send(msg ha.Message) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.conn.WriteJSON(msg)
}

// MockHAServer simulates the parts of the Home Assistant websocket API the
// service uses: auth, get_states, call_service, subscribe_events and
// state_changed events.
type MockHAServer struct {
	server   *http.Server
	listener net.Listener
	token    string

	states   map[string]*ha.State
	statesMu sync.RWMutex

	connections []*connWrapper
	connsMu     sync.Mutex

	serviceCalls []ServiceCall
	failures     map[string]string
	callsMu      sync.Mutex
}

// NewMockHAServer creates a server that accepts token
func NewMockHAServer(token string) *MockHAServer {
	return &MockHAServer{
		token:    token,
		states:   make(map[string]*ha.State),
		failures: make(map[string]string),
	}
}

// Start listens on a free loopback port
func (s *MockHAServer) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/api/websocket", s.handleWebSocket)
	s.server = &http.Server{Handler: mux}

	go func() {
		if err := s.server.Serve(listener); err != http.ErrServerClosed {
			log.Printf("Mock HA server error: %v", err)
		}
	}()

	return nil
}

// URL is the websocket endpoint to hand to ha.NewClient
func (s *MockHAServer) URL() string {
	return fmt.Sprintf("ws://%s/api/websocket", s.listener.Addr())
}

// Stop closes all connections and the listener
func (s *MockHAServer) Stop() error {
	s.connsMu.Lock()
	for _, wrapper := range s.connections {
		wrapper.conn.Close()
	}
	s.connections = nil
	s.connsMu.Unlock()

	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// SetState sets a state and broadcasts a state_changed event
func (s *MockHAServer) SetState(entityID, state string, attributes map[string]interface{}) {
	s.statesMu.Lock()
	oldState := s.states[entityID]

	now := time.Now()
	newState := &ha.State{
		EntityID:    entityID,
		State:       state,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}
	s.states[entityID] = newState
	s.statesMu.Unlock()

	s.broadcastStateChange(entityID, oldState, newState)
}

// RemoveState deletes an entity without broadcasting
func (s *MockHAServer) RemoveState(entityID string) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	delete(s.states, entityID)
}

// GetState retrieves a state, nil when absent
func (s *MockHAServer) GetState(entityID string) *ha.State {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()
	return s.states[entityID]
}

// FailService makes every call to domain.service return an error result with message
func (s *MockHAServer) FailService(domain, service, message string) {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	s.failures[domain+"."+service] = message
}

func (s *MockHAServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	wrapper := &connWrapper{conn: conn}

	s.connsMu.Lock()
	s.connections = append(s.connections, wrapper)
	s.connsMu.Unlock()

	defer func() {
		s.connsMu.Lock()
		for i, w := range s.connections {
			if w.conn == conn {
				s.connections = append(s.connections[:i], s.connections[i+1:]...)
				break
			}
		}
		s.connsMu.Unlock()
		conn.Close()
	}()

	wrapper.send(ha.Message{Type: "auth_required"})

	var authMsg ha.AuthMessage
	if err := conn.ReadJSON(&authMsg); err != nil {
		return
	}
	if authMsg.AccessToken != s.token {
		wrapper.send(ha.Message{Type: "auth_invalid"})
		return
	}
	wrapper.send(ha.Message{Type: "auth_ok"})

	for {
		var msg json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		var base struct {
			ID   int    `json:"id"`
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		switch base.Type {
		case "subscribe_events":
			wrapper.send(result(base.ID, nil))
		case "get_states":
			s.handleGetStates(wrapper, base.ID)
		case "call_service":
			s.handleCallService(wrapper, msg)
		default:
			wrapper.send(failure(base.ID, "unknown_command", "Unknown command."))
		}
	}
}

func (s *MockHAServer) handleGetStates(wrapper *connWrapper, id int) {
	s.statesMu.RLock()
	states := make([]*ha.State, 0, len(s.states))
	for _, state := range s.states {
		states = append(states, state)
	}
	s.statesMu.RUnlock()

	statesJSON, _ := json.Marshal(states)
	wrapper.send(result(id, statesJSON))
}

func (s *MockHAServer) handleCallService(wrapper *connWrapper, msg json.RawMessage) {
	var req ha.CallServiceRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return
	}

	s.callsMu.Lock()
	s.serviceCalls = append(s.serviceCalls, ServiceCall{
		Timestamp:   time.Now(),
		Domain:      req.Domain,
		Service:     req.Service,
		ServiceData: req.ServiceData,
	})
	failMessage, fail := s.failures[req.Domain+"."+req.Service]
	s.callsMu.Unlock()

	if fail {
		wrapper.send(failure(req.ID, "home_assistant_error", failMessage))
		return
	}

	// Ack before the resulting state_changed event, as Home Assistant does
	wrapper.send(result(req.ID, nil))

	entityID, _ := req.ServiceData["entity_id"].(string)
	if value, ok := stateAfter(req.Service, req.ServiceData); ok && entityID != "" {
		s.statesMu.RLock()
		oldState := s.states[entityID]
		s.statesMu.RUnlock()

		if oldState != nil {
			s.SetState(entityID, value, oldState.Attributes)
		}
	}
}

// stateAfter derives the state a write service leaves behind
func stateAfter(service string, data map[string]interface{}) (string, bool) {
	var key string
	switch service {
	case "turn_on":
		return "on", true
	case "turn_off":
		return "off", true
	case "open_cover":
		return "open", true
	case "close_cover":
		return "closed", true
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
	default:
		return "", false
	}

	value, ok := data[key]
	if !ok {
		return "", false
	}
	if f, ok := value.(float64); ok {
		return fmt.Sprintf("%.2f", f), true
	}
	return fmt.Sprint(value), true
}

func result(id int, body json.RawMessage) ha.Message {
	success := true
	return ha.Message{ID: id, Type: "result", Success: &success, Result: body}
}

func failure(id int, code, message string) ha.Message {
	success := false
	return ha.Message{ID: id, Type: "result", Success: &success, Error: &ha.Error{Code: code, Message: message}}
}

func (s *MockHAServer) broadcastStateChange(entityID string, oldState, newState *ha.State) {
	eventData, _ := json.Marshal(ha.StateChangedEvent{
		EntityID: entityID,
		NewState: newState,
		OldState: oldState,
	})

	msg := ha.Message{
		Type: "event",
		Event: &ha.Event{
			EventType: "state_changed",
			Data:      eventData,
			Origin:    "LOCAL",
			TimeFired: time.Now(),
		},
	}

	s.connsMu.Lock()
	wrappers := make([]*connWrapper, len(s.connections))
	copy(wrappers, s.connections)
	s.connsMu.Unlock()

	for _, wrapper := range wrappers {
		wrapper.send(msg)
	}
}

// GetServiceCalls returns all service calls since last clear
func (s *MockHAServer) GetServiceCalls() []ServiceCall {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	calls := make([]ServiceCall, len(s.serviceCalls))
	copy(calls, s.serviceCalls)
	return calls
}

// ClearServiceCalls resets the service call log
func (s *MockHAServer) ClearServiceCalls() {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	s.serviceCalls = nil
}
