package server

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/elisoncampos/reactive-views-sub000/internal/errors"
	"github.com/elisoncampos/reactive-views-sub000/internal/orchestrator"
)

// TransformRequest is the body of POST /transform.
type TransformRequest struct {
	Markup string         `json:"markup"`
	Data   map[string]any `json:"data,omitempty"`
	// Select limits the host data each component receives, by component
	// name. Absent means every component receives all of Data.
	Select map[string][]string `json:"select,omitempty"`
}

// TransformResponse is the body returned by POST /transform.
type TransformResponse struct {
	HTML     string   `json:"html"`
	Strategy string   `json:"strategy"`
	Islands  int      `json:"islands"`
	Failed   []string `json:"failed,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req TransformRequest
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, errors.NewValidationError(errors.ErrCodeValidationFailed, "invalid request body: "+err.Error()))
		return
	}

	if s.opts.Transformer == nil {
		writeError(w, http.StatusServiceUnavailable, errors.NewConfigError(errors.ErrCodeConfigInvalid, "no transformer configured"))
		return
	}

	oreq := orchestrator.Request{Data: req.Data}
	if req.Select != nil {
		oreq.Selector = orchestrator.SelectKeys(req.Select)
	}

	html, report := s.opts.Transformer.TransformReport(ctx, req.Markup, oreq)

	resp := TransformResponse{HTML: html}
	if report != nil {
		resp.Strategy = report.Strategy.String()
		resp.Islands = len(report.Islands)
		for _, f := range report.Failures {
			resp.Failed = append(resp.Failed, f.Component)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	s.opts.Health.HTTPHandler()(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err *errors.ViewError) {
	writeJSON(w, status, errorResponse{Error: err.Message, Code: err.Code})
}
