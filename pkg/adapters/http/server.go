// Package http exposes an engine over a JSON HTTP API. The handler is a
// thin adapter: every route maps onto one engine operation and the engine
// keeps all session state, so the server itself is stateless.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/answers"
	"github.com/aretw0/arbor/pkg/decision"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/session"
)

// Engine defines the questionnaire operations the server exposes.
type Engine interface {
	Current() decision.Node
	Trees() []decision.Node
	UserData() *answers.Store
	Load(ctx context.Context, uid string) (decision.Node, error)
	LoadNext(ctx context.Context) (decision.Node, error)
	LoadPrevious(ctx context.Context) (decision.Node, error)
	Evaluate() arbor.Report
	SetAnswer(question *decision.Question, answer any, matrixID string) error
	AddAnswer(question *decision.Question, answer any, matrixID string) error
	RemoveAnswer(question *decision.Question, answer any, matrixID string) error
	ResetMatrixRow(matrixID string) error
	Submit(ctx context.Context, state arbor.State) error
	LoadUserData(ctx context.Context) error
	SaveUserData(ctx context.Context) error
}

// Server wires an Engine to the HTTP routes.
type Server struct {
	Engine Engine
	Logger *slog.Logger
}

// NewHandler creates an HTTP handler serving the engine.
func NewHandler(engine Engine, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	server := &Server{Engine: engine, Logger: logger}

	r := chi.NewRouter()
	r.Get("/health", server.GetHealth)
	r.Get("/info", server.GetInfo)
	r.Get("/tree", server.GetTree)
	r.Get("/tree/{uid}", server.GetTreeByUID)
	r.Post("/tree/load", server.LoadTree)
	r.Post("/tree/next", server.LoadNextTree)
	r.Post("/tree/previous", server.LoadPreviousTree)
	r.Post("/answer", server.Answer)
	r.Post("/matrix/reset", server.ResetMatrix)
	r.Post("/evaluate", server.Evaluate)
	r.Get("/userdata", server.GetUserData)
	r.Post("/userdata/load", server.LoadUserData)
	r.Post("/userdata/save", server.SaveUserData)
	r.Post("/submit", server.Submit)

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Ensure the root engine satisfies the route surface.
var _ Engine = (*arbor.Engine)(nil)

// reportResponse is the JSON shape of an evaluation report.
type reportResponse struct {
	RulesEvaluated     int  `json:"rules_evaluated"`
	ValidationFailures int  `json:"validation_failures"`
	Faults             int  `json:"faults"`
	Valid              bool `json:"valid"`
}

func mapReport(r arbor.Report) reportResponse {
	return reportResponse{
		RulesEvaluated:     r.RulesEvaluated,
		ValidationFailures: r.ValidationFailures,
		Faults:             r.Faults,
		Valid:              r.Valid(),
	}
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{
		"app":     "arbor-http",
		"version": strings.TrimSpace(arbor.Version),
	})
}

// GetTree handles the GET /tree request and returns the current tree in
// wire form.
func (s *Server) GetTree(w http.ResponseWriter, r *http.Request) {
	current := s.Engine.Current()
	if current == nil {
		http.Error(w, "No tree loaded", http.StatusNotFound)
		return
	}
	s.writeJSON(w, decision.Encode(current))
}

// GetTreeByUID handles the GET /tree/{uid} request. The tree becomes the
// current one, mirroring how a client navigates the chain.
func (s *Server) GetTreeByUID(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	tree, err := s.Engine.Load(r.Context(), uid)
	if err != nil {
		s.writeEngineError(w, "GetTreeByUID", err)
		return
	}
	s.writeJSON(w, decision.Encode(tree))
}

// LoadTree handles the POST /tree/load request.
func (s *Server) LoadTree(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UID string `json:"uid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.Logger.Warn("LoadTree: invalid request body", "err", err)
		return
	}
	if body.UID == "" {
		http.Error(w, "uid is required", http.StatusBadRequest)
		return
	}

	tree, err := s.Engine.Load(r.Context(), body.UID)
	if err != nil {
		s.writeEngineError(w, "LoadTree", err)
		return
	}
	s.writeJSON(w, decision.Encode(tree))
}

// LoadNextTree handles the POST /tree/next request.
func (s *Server) LoadNextTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.Engine.LoadNext(r.Context())
	if err != nil {
		s.writeEngineError(w, "LoadNextTree", err)
		return
	}
	s.writeJSON(w, decision.Encode(tree))
}

// LoadPreviousTree handles the POST /tree/previous request.
func (s *Server) LoadPreviousTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.Engine.LoadPrevious(r.Context())
	if err != nil {
		s.writeEngineError(w, "LoadPreviousTree", err)
		return
	}
	s.writeJSON(w, decision.Encode(tree))
}

// Answer handles the POST /answer request. op selects between replacing,
// appending and removing; it defaults to "set".
func (s *Server) Answer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UID      string `json:"uid"`
		Value    string `json:"value"`
		MatrixID string `json:"matrix_id"`
		Op       string `json:"op"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.Logger.Warn("Answer: invalid request body", "err", err)
		return
	}

	question, err := s.findQuestion(body.UID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	switch body.Op {
	case "", "set":
		err = s.Engine.SetAnswer(question, body.Value, body.MatrixID)
	case "add":
		err = s.Engine.AddAnswer(question, body.Value, body.MatrixID)
	case "remove":
		err = s.Engine.RemoveAnswer(question, body.Value, body.MatrixID)
	default:
		http.Error(w, fmt.Sprintf("Unknown op %q", body.Op), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeEngineError(w, "Answer", err)
		return
	}
	s.writeJSON(w, mapReport(s.Engine.Evaluate()))
}

// ResetMatrix handles the POST /matrix/reset request.
func (s *Server) ResetMatrix(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MatrixID string `json:"matrix_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.MatrixID == "" {
		http.Error(w, "matrix_id is required", http.StatusBadRequest)
		return
	}
	if err := s.Engine.ResetMatrixRow(body.MatrixID); err != nil {
		s.writeEngineError(w, "ResetMatrix", err)
		return
	}
	s.writeJSON(w, mapReport(s.Engine.Evaluate()))
}

// Evaluate handles the POST /evaluate request.
func (s *Server) Evaluate(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, mapReport(s.Engine.Evaluate()))
}

// GetUserData handles the GET /userdata request and returns the answer
// store in wire form.
func (s *Server) GetUserData(w http.ResponseWriter, r *http.Request) {
	data, err := s.Engine.UserData().Export()
	if err != nil {
		http.Error(w, fmt.Sprintf("Export error: %v", err), http.StatusInternalServerError)
		s.Logger.Error("GetUserData: export failed", "err", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// LoadUserData handles the POST /userdata/load request.
func (s *Server) LoadUserData(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.LoadUserData(r.Context()); err != nil {
		s.writeEngineError(w, "LoadUserData", err)
		return
	}
	s.writeJSON(w, mapReport(s.Engine.Evaluate()))
}

// SaveUserData handles the POST /userdata/save request.
func (s *Server) SaveUserData(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.SaveUserData(r.Context()); err != nil {
		s.writeEngineError(w, "SaveUserData", err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "saved"})
}

// Submit handles the POST /submit request. state selects the navigation
// performed after a successful submit: "none", "next" or "previous".
func (s *Server) Submit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var state arbor.State
	switch body.State {
	case "", "none":
		state = arbor.StateNoChange
	case "next":
		state = arbor.StateNext
	case "previous":
		state = arbor.StatePrevious
	default:
		http.Error(w, fmt.Sprintf("Unknown state %q", body.State), http.StatusBadRequest)
		return
	}

	if err := s.Engine.Submit(r.Context(), state); err != nil {
		s.writeEngineError(w, "Submit", err)
		return
	}
	s.writeJSON(w, mapReport(s.Engine.Evaluate()))
}

// findQuestion resolves a question uid inside the current tree.
func (s *Server) findQuestion(uid string) (*decision.Question, error) {
	current := s.Engine.Current()
	if current == nil {
		return nil, errors.New("no tree loaded")
	}
	node := decision.Find(current, uid)
	if node == nil {
		return nil, fmt.Errorf("question %q not found", uid)
	}
	question, ok := node.(*decision.Question)
	if !ok {
		return nil, fmt.Errorf("node %q is not a question", uid)
	}
	return question, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("response encode failed", "err", err)
	}
}

// writeEngineError maps engine sentinel errors onto HTTP status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, session.ErrRequestInFlight):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, arbor.ErrValidationFailed):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, arbor.ErrReadOnly):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ports.ErrTreeNotFound),
		errors.Is(err, arbor.ErrNoTreeLoaded),
		errors.Is(err, arbor.ErrNoNextTree),
		errors.Is(err, arbor.ErrNoPreviousTree):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, fmt.Sprintf("%s error: %v", op, err), http.StatusInternalServerError)
		s.Logger.Error(op+" failed", "err", err)
	}
}
