package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hvacautomation/internal/automation"
	"hvacautomation/internal/dispatch"
	"hvacautomation/internal/ha"
	"hvacautomation/pkg/plugin"

	"go.uber.org/zap"
)

const maxInvokeBody = 64 << 10

// RuleSource lists the configured rules
type RuleSource interface {
	Rules() []automation.Rule
}

// Server provides HTTP endpoints to inspect and trigger rules
type Server struct {
	client    ha.HAClient
	rules     RuleSource
	runner    *automation.Runner
	registry  *plugin.Registry
	pluginCtx *plugin.Context
	logger    *zap.Logger
	server    *http.Server
	handler   http.Handler
}

// NewServer creates a new API server
func NewServer(
	client ha.HAClient,
	rules RuleSource,
	runner *automation.Runner,
	registry *plugin.Registry,
	pluginCtx *plugin.Context,
	logger *zap.Logger,
	port int,
) *Server {
	s := &Server{
		client:    client,
		rules:     rules,
		runner:    runner,
		registry:  registry,
		pluginCtx: pluginCtx,
		logger:    logger.Named("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleSitemap)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/kinds", s.handleListKinds)
	mux.HandleFunc("GET /api/rules", s.handleListRules)
	mux.HandleFunc("GET /api/rules/{name}", s.handleGetRule)
	mux.HandleFunc("POST /api/rules/{name}/run", s.handleRunRule)
	mux.HandleFunc("POST /api/invoke/{kind}", s.handleInvoke)
	s.handler = mux

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	return s.handler
}

// RuleResponse describes a configured rule and its last result
type RuleResponse struct {
	Name     string             `json:"name"`
	Kind     string             `json:"kind"`
	Entities []string           `json:"entities"`
	Last     *automation.Result `json:"last,omitempty"`
}

// KindResponse describes a registered rule kind
type KindResponse struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]interface{}{
		"status":       "ok",
		"ha_connected": s.client.IsConnected(),
	}
	if !s.client.IsConnected() {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	s.writeJSON(w, status, body)
}

func (s *Server) handleListKinds(w http.ResponseWriter, r *http.Request) {
	kinds := s.registry.List()
	response := make([]KindResponse, 0, len(kinds))
	for _, info := range kinds {
		response = append(response, KindResponse{Kind: info.Kind, Description: info.Description})
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules := s.rules.Rules()
	response := make([]RuleResponse, 0, len(rules))
	for _, rule := range rules {
		response = append(response, s.describe(rule))
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule := s.findRule(r.PathValue("name"))
	if rule == nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("rule %q not found", r.PathValue("name")))
		return
	}
	s.writeJSON(w, http.StatusOK, s.describe(rule))
}

func (s *Server) handleRunRule(w http.ResponseWriter, r *http.Request) {
	rule := s.findRule(r.PathValue("name"))
	if rule == nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("rule %q not found", r.PathValue("name")))
		return
	}
	s.run(w, r, rule)
}

// handleInvoke builds a one-off rule of the given kind from the request body
// (JSON or YAML params) and runs it. The optional name query parameter keys
// its state, e.g. the fan mode history.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInvokeBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read body: %w", err))
		return
	}

	kind := r.PathValue("kind")
	rule, err := s.registry.Build(s.pluginCtx, kind, r.URL.Query().Get("name"), plugin.BytesDecoder(body))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, plugin.ErrUnknownKind) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err)
		return
	}

	s.run(w, r, rule)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, rule automation.Rule) {
	outcome, err := s.runner.Run(r.Context(), rule)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, outcome)
}

// statusFor maps rule failures onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, automation.ErrMissingParameter),
		errors.Is(err, plugin.ErrInvalidParams),
		errors.Is(err, dispatch.ErrUnsupportedDomain):
		return http.StatusBadRequest
	case errors.Is(err, automation.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, automation.ErrEntityNotFound),
		errors.Is(err, automation.ErrValueParse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ha.ErrNotConnected),
		errors.Is(err, ha.ErrRequestTimeout):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) findRule(name string) automation.Rule {
	for _, rule := range s.rules.Rules() {
		if rule.Name() == name {
			return rule
		}
	}
	return nil
}

func (s *Server) describe(rule automation.Rule) RuleResponse {
	response := RuleResponse{
		Name:     rule.Name(),
		Kind:     rule.Kind(),
		Entities: rule.Entities(),
	}
	if last, ok := s.runner.LastResult(rule.Name()); ok {
		response.Last = &last
	}
	return response
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Debug("Request failed", zap.Int("status", status), zap.Error(err))
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/", Method: "GET", Description: "This sitemap"},
	{Path: "/health", Method: "GET", Description: "Health check, 503 while Home Assistant is disconnected"},
	{Path: "/api/kinds", Method: "GET", Description: "Registered rule kinds"},
	{Path: "/api/rules", Method: "GET", Description: "Configured rules with their last result"},
	{Path: "/api/rules/{name}", Method: "GET", Description: "One configured rule with its last result"},
	{Path: "/api/rules/{name}/run", Method: "POST", Description: "Run a configured rule now"},
	{Path: "/api/invoke/{kind}", Method: "POST", Description: "Run a one-off rule; body holds its params as JSON"},
}

// handleSitemap lists the endpoints, as HTML for browsers and plain text otherwise
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	preferHTML := strings.Contains(r.Header.Get("Accept"), "text/html")

	if preferHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head>
    <title>HVAC Automation API</title>
    <style>
        body { font-family: monospace; margin: 40px; background: #1e1e1e; color: #d4d4d4; }
        h1 { color: #4ec9b0; }
        .endpoint { background: #2d2d2d; padding: 15px; margin: 10px 0; border-left: 3px solid #007acc; }
        .method { color: #4ec9b0; font-weight: bold; }
        .path { color: #ce9178; }
        .description { color: #9cdcfe; margin-top: 5px; }
    </style>
</head>
<body>
    <h1>HVAC Automation API</h1>
`)
		for _, ep := range endpoints {
			fmt.Fprintf(w, `    <div class="endpoint">
        <div><span class="method">%s</span> <span class="path">%s</span></div>
        <div class="description">%s</div>
    </div>
`, ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprint(w, "</body>\n</html>\n")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "HVAC Automation API\n")
		fmt.Fprintf(w, "===================\n\n")
		for _, ep := range endpoints {
			fmt.Fprintf(w, "  %-6s %-24s %s\n", ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "\nExample:\n\n")
		fmt.Fprintf(w, "  curl -X POST -d '{\"switch_entity_id\": \"input_boolean.party\", \"output_entity_id\": \"select.fan_mode\", \"on_value\": \"High\", \"off_value\": \"Normal\"}' \\\n")
		fmt.Fprintf(w, "    http://localhost:8080/api/invoke/switch_value\n")
	}

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Bool("html_format", preferHTML))
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
