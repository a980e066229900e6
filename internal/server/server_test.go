package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"cuckoo/internal/poller"
	"cuckoo/internal/reminder"
	"cuckoo/internal/services/tasks"
	"cuckoo/internal/storage"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *storage.SQLite) {
	t.Helper()
	st, err := storage.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	svc := tasks.New(st, tasks.WithLocation(time.UTC), tasks.WithClock(func() time.Time { return testNow }))
	srv := httptest.NewServer(New(svc, append([]Option{WithPing(st.Ping)}, opts...)...))
	t.Cleanup(srv.Close)
	return srv, st
}

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer res.Body.Close()
	if out != nil && res.StatusCode < 300 && res.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return res.StatusCode
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, WithHealth(func() any { return map[string]int{"loops": 3} }))
	var body map[string]any
	if code := do(t, http.MethodGet, srv.URL+"/api/health", nil, &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" || body["db"] != true || body["runtime"] == nil {
		t.Fatalf("body = %v", body)
	}
}

func TestTaskLifecycle(t *testing.T) {
	t.Parallel()
	srv, st := newTestServer(t)
	at := testNow.Add(2 * time.Hour).Unix()

	var created tasks.View
	code := do(t, http.MethodPost, srv.URL+"/api/task", map[string]any{
		"brief":  "pay rent",
		"remind": map[string]any{"timestamp": at, "repeat_type": "monthly", "context": "home"},
	}, &created)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}
	if created.ID == 0 || created.Remind == nil || created.QueuedAt != at {
		t.Fatalf("created = %+v", created)
	}
	base := srv.URL + "/api/task/" + strconv.FormatInt(created.ID, 10)

	var got tasks.View
	if code := do(t, http.MethodGet, base, nil, &got); code != http.StatusOK || got.Brief != "pay rent" {
		t.Fatalf("get = %d %+v", code, got)
	}

	var list []reminder.Task
	if code := do(t, http.MethodGet, srv.URL+"/api/task?brief=rent&context=home", nil, &list); code != http.StatusOK || len(list) != 1 {
		t.Fatalf("search = %d %+v", code, list)
	}

	var following []reminder.Upcoming
	do(t, http.MethodGet, srv.URL+"/api/task/following?context=office", nil, &following)
	if len(following) != 0 {
		t.Fatalf("office following = %+v", following)
	}
	do(t, http.MethodGet, srv.URL+"/api/task/following?context=home", nil, &following)
	if len(following) != 1 || following[0].FireAt != at {
		t.Fatalf("home following = %+v", following)
	}

	var alfred tasks.AlfredOutput
	do(t, http.MethodGet, srv.URL+"/api/task/following?context=home&format=alfred", nil, &alfred)
	if len(alfred.Items) != 2 || alfred.Items[0].Title != "下列为2024-06-01的提醒" {
		t.Fatalf("alfred = %+v", alfred)
	}

	var patched tasks.View
	if code := do(t, http.MethodPatch, base, map[string]any{"state": "paused"}, &patched); code != http.StatusOK || patched.State != reminder.TaskPaused {
		t.Fatalf("patch = %d %+v", code, patched)
	}
	if entries, _ := st.List(context.Background()); len(entries) != 0 {
		t.Fatalf("paused task queued: %+v", entries)
	}

	var rem reminder.Reminder
	code = do(t, http.MethodPatch, srv.URL+"/api/remind/"+strconv.FormatInt(created.Remind.ID, 10),
		map[string]any{"context": "office"}, &rem)
	if code != http.StatusOK || rem.Context != "office" {
		t.Fatalf("patch remind = %d %+v", code, rem)
	}

	var dup tasks.View
	if code := do(t, http.MethodPost, base+"/duplicate", nil, &dup); code != http.StatusCreated || dup.ID == created.ID {
		t.Fatalf("duplicate = %d %+v", code, dup)
	}

	var logs []reminder.RemindLog
	if code := do(t, http.MethodGet, base+"/logs", nil, &logs); code != http.StatusOK || len(logs) != 0 {
		t.Fatalf("logs = %d %+v", code, logs)
	}

	if code := do(t, http.MethodDelete, base, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete status = %d", code)
	}
	if code := do(t, http.MethodGet, base, nil, nil); code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", code)
	}
}

func TestPutRemind(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	var created tasks.View
	do(t, http.MethodPost, srv.URL+"/api/task", map[string]any{"brief": "call mom"}, &created)

	at := testNow.Add(time.Hour).Unix()
	var rem reminder.Reminder
	url := srv.URL + "/api/task/" + strconv.FormatInt(created.ID, 10) + "/remind"
	if code := do(t, http.MethodPut, url, map[string]any{"timestamp": at, "repeat_type": "weekly"}, &rem); code != http.StatusOK {
		t.Fatalf("put remind status = %d", code)
	}
	if rem.NextFireAt != at || rem.Repeat == nil || rem.Repeat.String() != "weekly" {
		t.Fatalf("remind = %+v", rem)
	}
}

func TestErrors(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)
	tests := []struct {
		method string
		path   string
		body   any
		want   int
	}{
		{http.MethodPost, "/api/task", map[string]any{"brief": ""}, http.StatusBadRequest},
		{http.MethodPost, "/api/task", map[string]any{"brief": "x", "colour": "red"}, http.StatusBadRequest},
		{http.MethodPost, "/api/task", map[string]any{"brief": "x", "remind": map[string]any{"timestamp": 5, "repeat_type": "every_0_hours"}}, http.StatusBadRequest},
		{http.MethodGet, "/api/task/abc", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/task/42", nil, http.StatusNotFound},
		{http.MethodDelete, "/api/task/42", nil, http.StatusNotFound},
		{http.MethodPatch, "/api/remind/42", map[string]any{"context": "x"}, http.StatusNotFound},
		{http.MethodGet, "/api/task?limit=-1", nil, http.StatusBadRequest},
		{http.MethodPost, "/api/poll", nil, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		if code := do(t, tt.method, srv.URL+tt.path, tt.body, nil); code != tt.want {
			t.Fatalf("%s %s = %d, want %d", tt.method, tt.path, code, tt.want)
		}
	}
}

func TestPoll(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv, _ := newTestServer(t, WithTick(func(context.Context) (poller.TickReport, error) {
		calls.Add(1)
		return poller.TickReport{Due: 2, Fired: 1, Failed: 1}, errors.New("notifier down")
	}))
	var body struct {
		Report poller.TickReport `json:"report"`
		Error  string            `json:"error"`
	}
	if code := do(t, http.MethodPost, srv.URL+"/api/poll", nil, &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if calls.Load() != 1 || body.Report.Fired != 1 || body.Error != "notifier down" {
		t.Fatalf("body = %+v", body)
	}
}

type staticContext string

func (s staticContext) Current(context.Context) (string, error) { return string(s), nil }

func TestFollowingUsesDetector(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, WithContextProvider(staticContext("office")))
	at := testNow.Add(time.Hour).Unix()
	do(t, http.MethodPost, srv.URL+"/api/task", map[string]any{"brief": "a", "remind": map[string]any{"timestamp": at, "context": "home"}}, nil)
	do(t, http.MethodPost, srv.URL+"/api/task", map[string]any{"brief": "b", "remind": map[string]any{"timestamp": at, "context": "office"}}, nil)

	var following []reminder.Upcoming
	do(t, http.MethodGet, srv.URL+"/api/task/following", nil, &following)
	if len(following) != 1 || following[0].Task.Brief != "b" {
		t.Fatalf("following = %+v", following)
	}
	do(t, http.MethodGet, srv.URL+"/api/task/following?context=", nil, &following)
	if len(following) != 2 {
		t.Fatalf("explicit empty context should list all: %+v", following)
	}
}

func TestProfiler(t *testing.T) {
	t.Parallel()
	get := func(url, token string) int {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET %s: %v", url, err)
		}
		res.Body.Close()
		return res.StatusCode
	}

	plain, _ := newTestServer(t)
	if code := get(plain.URL+"/debug/pprof/", ""); code != http.StatusNotFound {
		t.Fatalf("profiler mounted by default: %d", code)
	}

	srv, _ := newTestServer(t, WithProfiler("s3cret"))
	if code := get(srv.URL+"/debug/pprof/", ""); code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", code)
	}
	if code := get(srv.URL+"/debug/pprof/", "wrong"); code != http.StatusUnauthorized {
		t.Fatalf("wrong token: %d", code)
	}
	if code := get(srv.URL+"/debug/pprof/", "s3cret"); code != http.StatusOK {
		t.Fatalf("with token: %d", code)
	}
	if code := get(srv.URL+"/debug/pprof/cmdline?token=s3cret", ""); code != http.StatusOK {
		t.Fatalf("query token: %d", code)
	}
}
