package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"argus/core"
)

// analyzeRequest is the single-shot HTTP request body. Token is
// optional: when empty or unknown a fresh session is opened and its
// token returned, so a stateless client can keep correlation history
// by echoing the token back on the next call.
type analyzeRequest struct {
	Token string `json:"token,omitempty"`
	Event string `json:"event"`
}

// analyzeResponse wraps the engine result with the session token the
// result was produced under.
type analyzeResponse struct {
	Token  string                  `json:"token"`
	Result *core.ProcessingResult `json:"result"`
}

// errorResponse is the JSON error body for every handler.
type errorResponse struct {
	Error string `json:"error"`
}

// handleHealth reports liveness and the open-session count.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"active_sessions": a.manager.Count(),
	})
}

// handleAnalyze runs one log line through a token-identified session.
func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, core.MaxLineLength+4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Event == "" {
		writeError(w, http.StatusBadRequest, "event is required")
		return
	}

	token := req.Token
	if token != "" {
		if _, err := a.manager.Get(token); errors.Is(err, core.ErrUnknownSession) {
			// Expired or never existed; fall through to a new session.
			token = ""
		}
	}
	if token == "" {
		s, err := a.manager.Open()
		if err != nil {
			writeEngineError(w, err)
			return
		}
		token = s.ID
	}

	result, err := a.processor.Process(token, req.Event)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{Token: token, Result: result})
}

// handleCloseSession tears down a token session.
func (a *API) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	if err := a.manager.Close(token); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed", "token": token})
}

// writeEngineError maps engine sentinel errors onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrUnknownSession):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrSessionLimit):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, core.ErrMalformedRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
