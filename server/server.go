//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package server exposes compiled graphs over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-agent-graph/agent"
	"trpc.group/trpc-go/trpc-agent-graph/config"
	"trpc.group/trpc-go/trpc-agent-graph/graph"
	"trpc.group/trpc-go/trpc-agent-graph/log"
	"trpc.group/trpc-go/trpc-agent-graph/model"
	"trpc.group/trpc-go/trpc-agent-graph/runner"
	"trpc.group/trpc-go/trpc-agent-graph/server/internal/schema"
)

// Error kinds reported in failed responses.
const (
	KindExternalCall    = "external_call"
	KindInvalidRoute    = "invalid_route"
	KindSchemaViolation = "schema_violation"
	KindRecursionLimit  = "recursion_limit"
	KindInvalidToken    = "invalid_token"
	KindCancelled       = "cancelled"
	KindInternal        = "internal"
)

// Server serves the runners of a registry. Runs are stateless on the server
// side: suspended runs are continued by posting back their token.
type Server struct {
	runners *runner.Registry
	cfg     *config.Config
	router  *mux.Router
	origins []string
}

// Option configures the Server instance.
type Option func(*Server)

// WithAllowedOrigins restricts CORS origins. All origins are allowed by
// default.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// New creates a server for the runners of reg. cfg is the base
// configuration that request configs are merged over.
func New(reg *runner.Registry, cfg *config.Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Server{
		runners: reg,
		cfg:     cfg,
		router:  mux.NewRouter(),
		origins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/graphs", s.handleListGraphs).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/graphs/{name}", s.handleGetGraph).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/graphs/{name}/runs", s.handleRun).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/graphs/{name}/resume", s.handleResume).Methods(http.MethodPost)

	preflight := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	s.router.HandleFunc("/v1/graphs/{name}/runs", preflight).Methods(http.MethodOptions)
	s.router.HandleFunc("/v1/graphs/{name}/resume", preflight).Methods(http.MethodOptions)
}

// ---- Handlers -----------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListGraphs(w http.ResponseWriter, r *http.Request) {
	log.Debugf("handleListGraphs called: path=%s", r.URL.Path)
	s.writeJSON(w, http.StatusOK, s.runners.ListRunners())
}

// handleGetGraph renders the graph as Graphviz DOT, or as JSON with
// ?format=json.
func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	rn, ok := s.lookup(w, r)
	if !ok {
		return
	}
	g := rn.Graph()
	if r.URL.Query().Get("format") == "json" {
		s.writeJSON(w, http.StatusOK, schema.GraphInfo{
			Name:            g.Name(),
			Nodes:           g.NodeIDs(),
			InterruptBefore: g.InterruptBefore(),
			InterruptAfter:  g.InterruptAfter(),
		})
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	if err := g.WriteDOT(w); err != nil {
		log.Warnf("write dot: %v", err)
	}
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	log.Infof("handleRun called: path=%s", r.URL.Path)
	rn, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req schema.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	if len(req.Messages) == 0 {
		http.Error(w, "messages are required", http.StatusBadRequest)
		return
	}
	cfg, err := s.config(req.Config)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts := []runner.RunOption{runner.WithRunConfig(cfg)}
	if req.RunID != "" {
		opts = append(opts, runner.WithRunID(req.RunID))
	}
	res, err := rn.Run(r.Context(), inputState(req.Messages), opts...)
	s.writeResult(w, res, err)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	log.Infof("handleResume called: path=%s", r.URL.Path)
	rn, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req schema.ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	cfg, err := s.config(req.Config)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	g := rn.Graph()
	token, err := g.DecodeToken(req.Token)
	if err != nil {
		s.writeResult(w, nil, err)
		return
	}
	opts := []runner.RunOption{runner.WithRunConfig(cfg)}
	if len(req.Patch) > 0 {
		patch, err := g.Schema().DecodeState(req.Patch)
		if err != nil {
			http.Error(w, fmt.Sprintf("decode patch: %v", err), http.StatusBadRequest)
			return
		}
		opts = append(opts, runner.WithStatePatch(patch))
	}
	res, err := rn.Resume(r.Context(), token, opts...)
	s.writeResult(w, res, err)
}

// ---- Helpers ------------------------------------------------------------

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (runner.Runner, bool) {
	rn, err := s.runners.GetRunner(mux.Vars(r)["name"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return rn, true
}

// config applies a request overlay to the server's configuration. Only
// the keys of config.Overlay are accepted; any other key is rejected.
func (s *Server) config(raw json.RawMessage) (*config.Config, error) {
	overlay, err := config.DecodeOverlay(raw)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg := s.cfg.Apply(overlay.Override())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func inputState(msgs []schema.Message) graph.State {
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		role := model.Role(m.Role)
		if role == "" {
			role = model.RoleUser
		}
		out[i] = model.Message{Role: role, Content: m.Content}
	}
	return graph.State{agent.StateKeyMessages: out}
}

func (s *Server) writeResult(w http.ResponseWriter, res *graph.Result, err error) {
	rsp := schema.RunResponse{}
	if res != nil {
		rsp = schema.RunResponse{
			RunID:  res.RunID,
			Status: res.Status,
			NodeID: res.NodeID,
			Steps:  res.Steps,
			State:  res.State,
			Token:  res.Token,
		}
	}
	status := http.StatusOK
	if err != nil {
		rsp.Error, status = describe(err)
		if res == nil {
			rsp.Status = graph.RunFailed
		}
	}
	s.writeJSON(w, status, rsp)
}

// describe maps a run failure to its reported kind and HTTP status.
func describe(err error) (*schema.Error, int) {
	e := &schema.Error{Kind: KindInternal, Message: err.Error()}
	var (
		ece *graph.ExternalCallError
		ire *graph.InvalidRouteError
		sve *model.SchemaViolationError
	)
	switch {
	case errors.As(err, &ece):
		e.Kind, e.Service, e.Op = KindExternalCall, ece.Service, ece.Op
		return e, http.StatusBadGateway
	case errors.As(err, &sve):
		e.Kind = KindSchemaViolation
		return e, http.StatusBadGateway
	case errors.As(err, &ire):
		e.Kind = KindInvalidRoute
	case errors.Is(err, runner.ErrRecursionLimit):
		e.Kind = KindRecursionLimit
		return e, http.StatusUnprocessableEntity
	case errors.Is(err, graph.ErrInvalidResumeToken):
		e.Kind = KindInvalidToken
		return e, http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		e.Kind = KindCancelled
		return e, http.StatusGatewayTimeout
	}
	return e, http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("encode response: %v", err)
	}
}
