package controlapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/paddyops/awd/awd"
	"github.com/paddyops/awd/fieldcfg"
	"github.com/paddyops/awd/runner"
	"github.com/paddyops/awd/store"
)

// maxRequestBodySize limits POST body sizes.
const maxRequestBodySize = 1 << 20 // 1 MB

// RegisterHTTPHandlers registers all control-api HTTP handlers under the
// given prefix. The prefix should be the path segment without a trailing
// slash (e.g. "api/awd"). Handlers are registered as:
//
//	POST   <prefix>/fields/{id}/init
//	POST   <prefix>/fields/{id}/decision
//	POST   <prefix>/fields/{id}/irrigation
//	GET    <prefix>/fields/{id}/status
//	POST   <prefix>/fields/{id}/stop
//	DELETE <prefix>/fields/{id}
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	mux.HandleFunc(prefix+"fields/", c.handleFields(prefix+"fields/"))
}

// handleFields routes /fields/{id}[/{action}] requests.
func (c *Component) handleFields(base string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.touch()

		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, base), "/")
		segments := strings.Split(rest, "/")
		fieldID := segments[0]
		if fieldID == "" {
			http.Error(w, "field id required", http.StatusBadRequest)
			return
		}

		if len(segments) == 1 {
			if r.Method == http.MethodDelete {
				c.handleDeactivate(w, r, fieldID)
				return
			}
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		switch segments[1] {
		case "init":
			c.requireMethod(w, r, http.MethodPost, func() { c.handleInit(w, r, fieldID) })
		case "decision":
			c.requireMethod(w, r, http.MethodPost, func() { c.handleDecision(w, r, fieldID) })
		case "irrigation":
			c.requireMethod(w, r, http.MethodPost, func() { c.handleExecute(w, r, fieldID) })
		case "status":
			c.requireMethod(w, r, http.MethodGet, func() { c.handleStatus(w, r, fieldID) })
		case "stop":
			c.requireMethod(w, r, http.MethodPost, func() { c.handleStop(w, r, fieldID) })
		default:
			http.NotFound(w, r)
		}
	}
}

func (c *Component) requireMethod(w http.ResponseWriter, r *http.Request, method string, next func()) {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	next()
}

// InitRequest is the body for POST /fields/{id}/init.
type InitRequest struct {
	PlantingMethod string `json:"planting_method"`
	StartDate      string `json:"start_date"`
}

// handleInit puts a field under AWD control.
func (c *Component) handleInit(w http.ResponseWriter, r *http.Request, fieldID string) {
	var req InitRequest
	if !c.readJSON(w, r, &req) {
		return
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid start_date: %v", err), http.StatusBadRequest)
		return
	}

	cfg, err := c.fields.Initialize(r.Context(), fieldID, awd.PlantingMethod(req.PlantingMethod), startDate)
	if err != nil {
		c.writeError(w, fieldID, err)
		return
	}
	c.writeJSON(w, http.StatusCreated, cfg)
}

// handleDeactivate removes a field from AWD control.
func (c *Component) handleDeactivate(w http.ResponseWriter, r *http.Request, fieldID string) {
	if err := c.fields.Deactivate(r.Context(), fieldID); err != nil {
		c.writeError(w, fieldID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDecision evaluates a field and returns the decision without
// executing it.
func (c *Component) handleDecision(w http.ResponseWriter, r *http.Request, fieldID string) {
	d, err := c.engine.Decide(r.Context(), fieldID)
	if err != nil {
		c.writeError(w, fieldID, err)
		return
	}
	c.writeJSON(w, http.StatusOK, d)
}

// ExecuteRequest is the body for POST /fields/{id}/irrigation. An empty
// body (or empty action) means "decide and execute".
type ExecuteRequest struct {
	Action        string  `json:"action,omitempty"`
	TargetLevelCm float64 `json:"target_water_level_cm,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

// handleExecute carries out an irrigation decision for a field.
func (c *Component) handleExecute(w http.ResponseWriter, r *http.Request, fieldID string) {
	var req ExecuteRequest
	if r.ContentLength != 0 {
		if !c.readJSON(w, r, &req) {
			return
		}
	}

	var (
		d   awd.ControlDecision
		err error
	)
	switch req.Action {
	case "":
		d, err = c.engine.Decide(r.Context(), fieldID)
		if err != nil {
			c.writeError(w, fieldID, err)
			return
		}
	case string(awd.ActionStartIrrigation):
		d = awd.ControlDecision{
			FieldID: fieldID,
			Outcome: awd.StartIrrigation{TargetLevelCm: req.TargetLevelCm, Why: req.Reason},
		}
	case string(awd.ActionStopIrrigation):
		d = awd.ControlDecision{
			FieldID: fieldID,
			Outcome: awd.StopIrrigation{Why: req.Reason},
		}
	default:
		http.Error(w, fmt.Sprintf("unsupported action %q", req.Action), http.StatusBadRequest)
		return
	}

	res, err := c.engine.Execute(r.Context(), fieldID, d)
	if err != nil {
		c.writeError(w, fieldID, err)
		return
	}
	c.writeJSON(w, http.StatusOK, res)
}

// handleStatus reports whether a field is irrigating and what the engine
// would do next.
func (c *Component) handleStatus(w http.ResponseWriter, r *http.Request, fieldID string) {
	st, err := c.engine.Status(r.Context(), fieldID)
	if err != nil {
		c.writeError(w, fieldID, err)
		return
	}
	c.writeJSON(w, http.StatusOK, st)
}

// StopRequest is the optional body for POST /fields/{id}/stop.
type StopRequest struct {
	Reason string `json:"reason,omitempty"`
}

// handleStop stops a field's active irrigation run.
func (c *Component) handleStop(w http.ResponseWriter, r *http.Request, fieldID string) {
	if r.ContentLength != 0 {
		var req StopRequest
		if !c.readJSON(w, r, &req) {
			return
		}
	}

	res, err := c.engine.StopIrrigation(r.Context(), fieldID, awd.StopExternalCommand)
	if err != nil {
		c.writeError(w, fieldID, err)
		return
	}
	c.writeJSON(w, http.StatusOK, res)
}

// writeError maps domain errors onto HTTP status codes.
func (c *Component) writeError(w http.ResponseWriter, fieldID string, err error) {
	switch {
	case errors.Is(err, fieldcfg.ErrNotFound), errors.Is(err, store.ErrNotFound):
		http.Error(w, fmt.Sprintf("field %s not found", fieldID), http.StatusNotFound)
	case errors.Is(err, fieldcfg.ErrAlreadyActive), errors.Is(err, runner.ErrAlreadyActive):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		c.logger.Error("Request failed", "field_id", fieldID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (c *Component) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("start_date is required")
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// writeJSON marshals v as JSON and writes it to w with the given status
// code. An encode failure after the header has gone out cannot be reported
// to the client, so it is logged instead.
func (c *Component) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Error("Failed to write response", "error", err)
	}
}
