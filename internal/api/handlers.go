package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"timeplanner/internal/model"
	"timeplanner/internal/propagation"
	"timeplanner/internal/reservation"
	"timeplanner/internal/session"
	"timeplanner/internal/validation"
)

// maxBodyBytes bounds request bodies; a full schedule is a few KB.
const maxBodyBytes = 1 << 20

// SessionResponse is a session view plus the rendered error messages.
type SessionResponse struct {
	session.View
	Messages map[validation.FieldPath]string `json:"messages"`
}

// ValidateResponse is the response for POST /api/validate.
type ValidateResponse struct {
	Valid             bool                            `json:"valid"`
	Errors            validation.Errors               `json:"errors"`
	Messages          map[validation.FieldPath]string `json:"messages"`
	BreakAppliedToAll bool                            `json:"breakAppliedToAll"`
}

type enableRequest struct {
	Enable *bool `json:"enable"`
}

type allowRequest struct {
	Allow *bool `json:"allow"`
}

type activeRequest struct {
	Active *bool `json:"active"`
}

type queueRequest struct {
	Queue *model.QueueNumber `json:"queue"`
}

func messages(errs validation.Errors) map[validation.FieldPath]string {
	out := make(map[validation.FieldPath]string, len(errs))
	for path, kind := range errs {
		out[path] = validation.Describe(path, kind)
	}
	return out
}

func decodeBody(r *http.Request, out any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// decodeSchedule reads a schedule body; an empty body yields fallback.
func decodeSchedule(r *http.Request, fallback model.WeeklySchedule) (model.WeeklySchedule, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return model.WeeklySchedule{}, err
	}
	if len(data) == 0 {
		return fallback, nil
	}
	var s model.WeeklySchedule
	if err := json.Unmarshal(data, &s); err != nil {
		return model.WeeklySchedule{}, fmt.Errorf("invalid schedule: %w", err)
	}
	return s, nil
}

func dayIndex(r *http.Request) (int, error) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		return 0, fmt.Errorf("day index must be an integer")
	}
	if err := model.CheckIndex(index); err != nil {
		return 0, err
	}
	return index, nil
}

func (s *HTTPServer) writeView(w http.ResponseWriter, status int, v session.View) {
	writeJSON(w, status, SessionResponse{View: v, Messages: messages(v.Errors)})
}

func (s *HTTPServer) writeOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, reservation.ErrClosed):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrIndexOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reservation.ErrDayInactive):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Operation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *HTTPServer) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeOpError(w, err)
		return nil, false
	}
	return sess, true
}

// handleValidate checks a submitted schedule without storing it.
// POST /api/validate
func (s *HTTPServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncHTTP("validate")

	schedule, err := decodeSchedule(r, model.DefaultSchedule())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	errs := s.sessions.Validate(schedule)
	writeJSON(w, http.StatusOK, ValidateResponse{
		Valid:             errs.OK(),
		Errors:            errs,
		Messages:          messages(errs),
		BreakAppliedToAll: propagation.BreakAppliedToAll(schedule),
	})
}

// POST /api/sessions
func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncHTTP("session_create")

	schedule, err := decodeSchedule(r, s.sessions.Default())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess := s.sessions.Create(schedule)
	s.writeView(w, http.StatusCreated, sess.View())
}

// GET /api/sessions/{id}
func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncHTTP("session_get")

	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.writeView(w, http.StatusOK, sess.View())
}

// DELETE /api/sessions/{id}
func (s *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncHTTP("session_delete")

	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		s.writeOpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/sessions/{id}/allow
func (s *HTTPServer) handleAllow(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncHTTP("allow")

	var req allowRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Allow == nil {
		writeError(w, http.StatusBadRequest, "allow is required")
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respond(w, func() (session.View, error) { return sess.AllowSchedule(*req.Allow) })
}

// PUT /api/sessions/{id}/template
func (s *HTTPServer) handleSetTemplate(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncHTTP("template")

	var req propagation.TemplatePatch
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respond(w, func() (session.View, error) { return sess.SetTemplate(req) })
}

// POST /api/sessions/{id}/apply-template
func (s *HTTPServer) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncHTTP("apply_template")

	enable, ok := s.decodeEnable(w, r)
	if !ok {
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respond(w, func() (session.View, error) { return sess.ApplyTemplateToAllDays(enable) })
}

// POST /api/sessions/{id}/shift
func (s *HTTPServer) handleApplyShift(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncHTTP("shift")

	var patch model.IntervalPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respond(w, func() (session.View, error) { return sess.ApplyShiftToSelectedDays(patch) })
}

// POST /api/sessions/{id}/break
func (s *HTTPServer) handleApplyBreak(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncHTTP("break")

	var patch model.IntervalPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respond(w, func() (session.View, error) { return sess.ApplyBreakToSelectedDays(patch) })
}

// POST /api/sessions/{id}/break-toggle
func (s *HTTPServer) handleToggleBreakAll(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncHTTP("break_toggle")

	enable, ok := s.decodeEnable(w, r)
	if !ok {
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respond(w, func() (session.View, error) { return sess.ApplyBreakToggleForAllActiveDays(enable) })
}

// POST /api/sessions/{id}/days/{index}/active
func (s *HTTPServer) handleSetDayActive(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncHTTP("day_active")

	index, err := dayIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req activeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "active is required")
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respond(w, func() (session.View, error) { return sess.SetDayActive(index, *req.Active) })
}

// POST /api/sessions/{id}/days/{index}/break
func (s *HTTPServer) handleToggleBreakForDay(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncHTTP("day_break")

	index, err := dayIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	enable, ok := s.decodeEnable(w, r)
	if !ok {
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respond(w, func() (session.View, error) { return sess.ToggleBreakForDay(index, enable) })
}

// PUT /api/sessions/{id}/days/{index}/queue
func (s *HTTPServer) handleSelectQueue(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncHTTP("queue_select")

	index, err := dayIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req queueRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Queue == nil {
		writeError(w, http.StatusBadRequest, "queue is required")
		return
	}
	queue := int(*req.Queue)
	if queue < 0 {
		writeError(w, http.StatusBadRequest, "queue must not be negative")
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respond(w, func() (session.View, error) { return sess.SelectQueue(r.Context(), index, queue) })
}

// DELETE /api/sessions/{id}/days/{index}/queue
func (s *HTTPServer) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncHTTP("queue_clear")

	index, err := dayIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respond(w, func() (session.View, error) { return sess.ClearQueue(index) })
}

func (s *HTTPServer) decodeEnable(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var req enableRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false, false
	}
	if req.Enable == nil {
		writeError(w, http.StatusBadRequest, "enable is required")
		return false, false
	}
	return *req.Enable, true
}

func (s *HTTPServer) respond(w http.ResponseWriter, op func() (session.View, error)) {
	v, err := op()
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	s.writeView(w, http.StatusOK, v)
}
