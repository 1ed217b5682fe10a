package rpc

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/grizabella-go/grizabella/pkg/grizabella"
)

// Server exposes a [Dispatcher] over HTTP, the same way the teacher's
// internal/health package exposes checkers: a Register method that adds
// routes to a caller-owned mux, and a shared writeJSON helper for the
// response envelope.
type Server struct {
	d *Dispatcher
}

// NewServer wraps d as an HTTP transport.
func NewServer(d *Dispatcher) *Server {
	return &Server{d: d}
}

// Register adds the RPC route to mux: POST /rpc/{method} with a JSON
// request body holding the method's arguments.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /rpc/{method}", s.handleDispatch)
}

// handleDispatch reads the request body as the method's argument JSON,
// dispatches it, and writes back the result or a structured *Error with a
// status code derived from its category.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	method := r.PathValue("method")

	argsJSON, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Error{Message: "read request body: " + err.Error()})
		return
	}
	if len(argsJSON) == 0 {
		argsJSON = []byte("{}")
	}

	out, rpcErr := s.d.Dispatch(r.Context(), method, argsJSON)
	if rpcErr != nil {
		writeJSON(w, statusForError(rpcErr), rpcErr)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(out)
}

// statusForError maps an *Error's category to the HTTP status a remote
// caller should see. An empty category means the error carried none (as
// when Dispatch rejects an unknown method name); it is reported as a
// client-side error.
func statusForError(e *Error) int {
	switch grizabella.Category(e.Category) {
	case grizabella.CategoryValidation:
		return http.StatusBadRequest
	case grizabella.CategorySchema, grizabella.CategoryInstance:
		return http.StatusUnprocessableEntity
	case grizabella.CategoryDatabase, grizabella.CategoryEmbedding, grizabella.CategoryConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// writeJSON encodes v as JSON and writes it with the given status code,
// falling back to a plain-text 500 on encode failure.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"message":"failed to encode response"}`, http.StatusInternalServerError)
	}
}
