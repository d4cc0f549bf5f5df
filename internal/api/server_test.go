package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hvacautomation/internal/automation"
	"hvacautomation/internal/clock"
	"hvacautomation/internal/dispatch"
	"hvacautomation/internal/ha"
	"hvacautomation/internal/history"
	"hvacautomation/pkg/plugin"

	_ "hvacautomation/internal/plugins/switchvalue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticRules []automation.Rule

func (s staticRules) Rules() []automation.Rule { return s }

const partyParams = `{"switch_entity_id": "input_boolean.party", "output_entity_id": "select.fan_mode", "on_value": "High", "off_value": "Normal"}`

func newTestServer(t *testing.T) (*Server, *ha.MockClient) {
	logger := zap.NewNop()
	client := ha.NewMockClient()
	require.NoError(t, client.Connect())
	client.SetState("input_boolean.party", "on", nil)
	client.SetState("select.fan_mode", "Normal", nil)

	dispatcher := dispatch.NewDispatcher(client, logger, false)
	pluginCtx := plugin.NewContext(client, dispatcher, dispatch.NewHAPublisher(client), history.NewMemoryStore(history.DefaultCapacity), logger)

	party, err := plugin.Build(pluginCtx, "switch_value", "party", plugin.BytesDecoder([]byte(partyParams)))
	require.NoError(t, err)

	runner := automation.NewRunner(logger, clock.NewRealClock(), nil)
	return NewServer(client, staticRules{party}, runner, plugin.Default(), pluginCtx, logger, 0), client
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	server, client := newTestServer(t)

	w := do(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["ha_connected"])

	require.NoError(t, client.Disconnect())
	w = do(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleRules(t *testing.T) {
	server, client := newTestServer(t)

	t.Run("list before any run", func(t *testing.T) {
		w := do(t, server, http.MethodGet, "/api/rules", "")
		require.Equal(t, http.StatusOK, w.Code)

		var rules []RuleResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&rules))
		require.Len(t, rules, 1)
		assert.Equal(t, "party", rules[0].Name)
		assert.Equal(t, "switch_value", rules[0].Kind)
		assert.Equal(t, []string{"input_boolean.party"}, rules[0].Entities)
		assert.Nil(t, rules[0].Last)
	})

	t.Run("run", func(t *testing.T) {
		w := do(t, server, http.MethodPost, "/api/rules/party/run", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var outcome automation.Outcome
		require.NoError(t, json.NewDecoder(w.Body).Decode(&outcome))
		assert.Equal(t, automation.ActionSet, outcome.Action)
		assert.Equal(t, "High", outcome.Decision)
		assert.Equal(t, "select.fan_mode", outcome.Target)

		state, err := client.GetState("select.fan_mode")
		require.NoError(t, err)
		assert.Equal(t, "High", state.State)
	})

	t.Run("get records last result", func(t *testing.T) {
		w := do(t, server, http.MethodGet, "/api/rules/party", "")
		require.Equal(t, http.StatusOK, w.Code)

		var rule RuleResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&rule))
		require.NotNil(t, rule.Last)
		require.NotNil(t, rule.Last.Outcome)
		assert.Equal(t, "High", rule.Last.Outcome.Decision)
	})

	t.Run("failure surfaces entity not found", func(t *testing.T) {
		client.RemoveState("input_boolean.party")
		w := do(t, server, http.MethodPost, "/api/rules/party/run", "")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), "entity not found")
	})

	t.Run("unknown rule", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, do(t, server, http.MethodPost, "/api/rules/nope/run", "").Code)
		assert.Equal(t, http.StatusNotFound, do(t, server, http.MethodGet, "/api/rules/nope", "").Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		assert.Equal(t, http.StatusMethodNotAllowed, do(t, server, http.MethodGet, "/api/rules/party/run", "").Code)
	})
}

func TestHandleInvoke(t *testing.T) {
	server, client := newTestServer(t)

	tests := []struct {
		name           string
		path           string
		body           string
		expectedStatus int
		expectedValue  string
	}{
		{"switch on", "/api/invoke/switch_value?name=adhoc", partyParams, http.StatusOK, "High"},
		{"missing parameter", "/api/invoke/switch_value", `{"switch_entity_id": "input_boolean.party"}`, http.StatusBadRequest, ""},
		{"malformed params", "/api/invoke/switch_value", `{"on_value": [`, http.StatusBadRequest, ""},
		{"unknown kind", "/api/invoke/dehumidifier", `{}`, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client.ClearServiceCalls()

			w := do(t, server, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.expectedStatus, w.Code, w.Body.String())

			if tt.expectedStatus != http.StatusOK {
				assert.Empty(t, client.GetServiceCalls())
				var body errorResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
				assert.NotEmpty(t, body.Error)
				return
			}

			var outcome automation.Outcome
			require.NoError(t, json.NewDecoder(w.Body).Decode(&outcome))
			assert.Equal(t, "adhoc", outcome.Rule)
			assert.Equal(t, tt.expectedValue, outcome.Decision)
			assert.Len(t, client.GetServiceCalls(), 1)
		})
	}
}

func TestHandleListKinds(t *testing.T) {
	server, _ := newTestServer(t)

	w := do(t, server, http.MethodGet, "/api/kinds", "")
	require.Equal(t, http.StatusOK, w.Code)

	var kinds []KindResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&kinds))

	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.Kind)
	}
	assert.Contains(t, names, "switch_value")
	assert.Contains(t, names, "imbalance")
}

func TestHandleSitemap(t *testing.T) {
	server, _ := newTestServer(t)

	t.Run("plain text", func(t *testing.T) {
		w := do(t, server, http.MethodGet, "/", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "/api/invoke/{kind}")
	})

	t.Run("html", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, req)

		assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "<title>HVAC Automation API</title>")
	})

	t.Run("unknown path", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, do(t, server, http.MethodGet, "/nope", "").Code)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{automation.MissingParameter("output_entity"), http.StatusBadRequest},
		{fmt.Errorf("%w: x", plugin.ErrInvalidParams), http.StatusBadRequest},
		{dispatch.ErrUnsupportedDomain, http.StatusBadRequest},
		{automation.ErrAlreadyRunning, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", ha.ErrEntityNotFound), http.StatusUnprocessableEntity},
		{automation.ErrValueParse, http.StatusUnprocessableEntity},
		{ha.ErrNotConnected, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.expected, statusFor(tt.err))
		})
	}
}
