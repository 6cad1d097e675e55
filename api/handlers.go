package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/regiondispatch/core/calllog"
	"github.com/kilianp07/regiondispatch/core/dispatch"
	"github.com/kilianp07/regiondispatch/core/generator"
	"github.com/kilianp07/regiondispatch/core/model"
)

type APIError struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

const (
	errInvalidPayload  = "invalid payload"
	errInvalidCallID   = "invalid call id"
	errInvalidPriority = "invalid priority"
)

// RequestCallRequest asks for a call of a named scenario near a position.
type RequestCallRequest struct {
	Scenario string  `json:"scenario" validate:"required"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// EscalateRequest raises the priority of a call.
type EscalateRequest struct {
	Priority int `json:"priority" validate:"required,min=1,max=4"`
}

// UnitStatusRequest signals a side state of a unit.
type UnitStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=available busy on_stop meal_break returning ending_duty"`
}

type countResponse struct {
	Total  int            `json:"total"`
	ByTier map[string]int `json:"outstanding_by_priority"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, details any) {
	s.writeJSON(w, status, APIError{Error: message, Details: details})
}

func (s *Server) decodeAndValidate(r *http.Request, dst any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return s.validate.Struct(dst)
}

// writeDispatchError maps engine errors to status codes.
func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dispatch.ErrUnknownCall), errors.Is(err, generator.ErrNoScenario),
		errors.Is(err, dispatch.ErrNoPlayer), errors.Is(err, dispatch.ErrNoOffer):
		status = http.StatusNotFound
	case errors.Is(err, dispatch.ErrNotEscalation), errors.Is(err, dispatch.ErrInvalidPriority),
		errors.Is(err, dispatch.ErrInvalidTransition):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, dispatch.ErrNoSynthesizer):
		status = http.StatusServiceUnavailable
	case dispatch.IsLifecycleError(err), errors.Is(err, generator.ErrNoFreeLocation),
		errors.Is(err, dispatch.ErrNoCallAvailable):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("dispatch request failed")
	}
	s.writeError(w, status, err.Error(), nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"started_at": s.startedAt,
		"calls":      s.dispatcher.GetCallCount(),
	})
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	tiers := model.Priorities
	if raw := r.URL.Query().Get("priority"); raw != "" {
		p, err := model.ParsePriority(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, errInvalidPriority, err.Error())
			return
		}
		tiers = []model.Priority{p}
	}
	calls := []model.CallInfo{}
	for _, p := range tiers {
		calls = append(calls, s.dispatcher.GetCallList(p)...)
	}
	s.writeJSON(w, http.StatusOK, calls)
}

func (s *Server) handleCallCount(w http.ResponseWriter, _ *http.Request) {
	resp := countResponse{Total: s.dispatcher.GetCallCount(), ByTier: map[string]int{}}
	for p, n := range s.dispatcher.QueueDepth() {
		resp.ByTier[p.String()] = n
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "callID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidCallID, nil)
		return
	}
	info, ok := s.dispatcher.CallInfo(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, dispatch.ErrUnknownCall.Error(), nil)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleRequestCall(w http.ResponseWriter, r *http.Request) {
	var req RequestCallRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidPayload, err.Error())
		return
	}
	info, err := s.dispatcher.RequestCallInfo(req.Scenario, model.Position{X: req.X, Y: req.Y})
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "callID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidCallID, nil)
		return
	}
	var req EscalateRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidPayload, err.Error())
		return
	}
	c := s.dispatcher.Call(id)
	if c == nil {
		s.writeError(w, http.StatusNotFound, dispatch.ErrUnknownCall.Error(), nil)
		return
	}
	if err := s.dispatcher.EscalateCall(c, model.Priority(req.Priority)); err != nil {
		s.writeDispatchError(w, err)
		return
	}
	info, _ := s.dispatcher.CallInfo(id)
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleListUnits(w http.ResponseWriter, _ *http.Request) {
	units := s.dispatcher.Units()
	if units == nil {
		units = []model.UnitInfo{}
	}
	s.writeJSON(w, http.StatusOK, units)
}

func (s *Server) handleUnitStatus(w http.ResponseWriter, r *http.Request) {
	var req UnitStatusRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidPayload, err.Error())
		return
	}
	u := s.dispatcher.Unit(chi.URLParam(r, "unitID"))
	if u == nil {
		s.writeError(w, http.StatusNotFound, "unknown unit", nil)
		return
	}
	st, _ := model.ParseUnitStatus(req.Status)
	if err := s.dispatcher.SetUnitStatus(u, st); err != nil {
		s.writeDispatchError(w, err)
		return
	}
	for _, info := range s.dispatcher.Units() {
		if info.ID == u.ID {
			s.writeJSON(w, http.StatusOK, info)
			return
		}
	}
	s.writeError(w, http.StatusNotFound, "unknown unit", nil)
}

func (s *Server) handleInvoke(w http.ResponseWriter, _ *http.Request) {
	info, err := s.dispatcher.InvokeCalloutForPlayer()
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleNext(w http.ResponseWriter, _ *http.Request) {
	if err := s.dispatcher.InvokeNextCalloutForPlayer(); err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"pending": true})
}

func (s *Server) handleAccept(w http.ResponseWriter, _ *http.Request) {
	info, err := s.dispatcher.AcceptCall()
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDecline(w http.ResponseWriter, _ *http.Request) {
	info, err := s.dispatcher.DeclineCall()
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

// handleHistory queries the call log. Filters: start, end (RFC 3339),
// zone, priority, unit, closure.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "call log disabled", nil)
		return
	}
	v := r.URL.Query()
	q := calllog.Query{ZoneID: v.Get("zone"), UnitID: v.Get("unit"), Closure: v.Get("closure")}
	for key, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
		if raw := v.Get(key); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, "invalid "+key, err.Error())
				return
			}
			*dst = t
		}
	}
	if raw := v.Get("priority"); raw != "" {
		p, err := model.ParsePriority(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, errInvalidPriority, err.Error())
			return
		}
		q.Priority = p
	}
	recs, err := s.history.Query(r.Context(), q)
	if err != nil {
		s.log.Error().Err(err).Msg("call log query")
		s.writeError(w, http.StatusInternalServerError, "call log query failed", nil)
		return
	}
	if recs == nil {
		recs = []calllog.Record{}
	}
	s.writeJSON(w, http.StatusOK, recs)
}
