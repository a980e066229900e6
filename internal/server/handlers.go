package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"cuckoo/internal/reminder"
	"cuckoo/internal/services/tasks"
	"cuckoo/internal/storage"
	logx "cuckoo/pkg/logx"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case tasks.IsInvalidInput(err):
		status = http.StatusBadRequest
	case errors.Is(err, reminder.ErrNotFound):
		status = http.StatusNotFound
	default:
		s.log.Error("request failed", logx.Err(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "invalid id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Seconds(),
	}
	if s.ping != nil {
		dbOK := s.ping(r.Context()) == nil
		body["db"] = dbOK
		if !dbOK {
			body["status"] = "degraded"
		}
	}
	if s.health != nil {
		body["runtime"] = s.health()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if s.tick == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "poller disabled"})
		return
	}
	rep, err := s.tick(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"report": rep, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": rep})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	remindID, err := queryInt(r, "remind_id")
	if err != nil {
		badRequest(w, "invalid remind_id")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil || limit < 0 {
		badRequest(w, "invalid limit")
		return
	}
	list, err := s.tasks.Search(r.Context(), storage.TaskQuery{
		Brief:    q.Get("brief"),
		Detail:   q.Get("detail"),
		State:    q.Get("state"),
		Context:  q.Get("context"),
		RemindID: remindID,
		Limit:    int(limit),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []reminder.Task{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in tasks.NewTask
	if !decode(w, r, &in) {
		return
	}
	v, err := s.tasks.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleFollowing(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	current := strings.TrimSpace(q.Get("context"))
	if !q.Has("context") && s.detect != nil {
		if c, err := s.detect.Current(r.Context()); err == nil {
			current = c
		}
	}
	list, err := s.tasks.Following(r.Context(), current)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if q.Get("format") == "alfred" {
		writeJSON(w, http.StatusOK, tasks.AlfredItems(list, s.tasks.Location()))
		return
	}
	if list == nil {
		list = []reminder.Upcoming{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	v, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var p tasks.TaskPatch
	if !decode(w, r, &p) {
		return
	}
	v, err := s.tasks.Update(r.Context(), id, p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.tasks.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDuplicate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	v, err := s.tasks.Duplicate(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleRemind(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var spec tasks.RemindSpec
	if !decode(w, r, &spec) {
		return
	}
	rem, err := s.tasks.Remind(r.Context(), id, spec)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *Server) handlePatchRemind(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var p tasks.RemindPatch
	if !decode(w, r, &p) {
		return
	}
	rem, err := s.tasks.PatchReminder(r.Context(), id, p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil || limit < 0 {
		badRequest(w, "invalid limit")
		return
	}
	logs, err := s.tasks.Logs(r.Context(), id, int(limit))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if logs == nil {
		logs = []reminder.RemindLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}
