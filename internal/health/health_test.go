package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

type fakeDepther struct {
	depth int64
	err   error
}

func (f *fakeDepther) Length(ctx context.Context) (int64, error) { return f.depth, f.err }

func TestHTTPHandler(t *testing.T) {
	tests := []struct {
		name           string
		pinger         Pinger
		wantCode       int
		wantOK         bool
		wantMessage    string
	}{
		{
			name:        "healthy with nil pinger",
			pinger:      nil,
			wantCode:    http.StatusOK,
			wantOK:      true,
			wantMessage: "ok",
		},
		{
			name:        "healthy queue",
			pinger:      &fakePinger{},
			wantCode:    http.StatusOK,
			wantOK:      true,
			wantMessage: "ok",
		},
		{
			name:        "queue ping failure",
			pinger:      &fakePinger{err: errors.New("connection refused")},
			wantCode:    http.StatusServiceUnavailable,
			wantOK:      false,
			wantMessage: "queue ping failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/healthz", nil)
			w := httptest.NewRecorder()

			HTTPHandler(tt.pinger)(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var st Status
			if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
				t.Fatalf("response JSON parse error: %v", err)
			}
			if st.OK != tt.wantOK || st.Message != tt.wantMessage {
				t.Errorf("status = %+v, want OK=%v Message=%q", st, tt.wantOK, tt.wantMessage)
			}
		})
	}
}

func TestStatusHandler(t *testing.T) {
	req := httptest.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()

	StatusHandler(func() string { return "running" }, &fakeDepther{depth: 4}, func() (int64, int64) { return 12, 2 }, true)(w, req)

	var st ServiceStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("response JSON parse error: %v", err)
	}
	if st.WorkerState != "running" {
		t.Errorf("WorkerState = %q", st.WorkerState)
	}
	if st.QueueDepth != 4 {
		t.Errorf("QueueDepth = %d", st.QueueDepth)
	}
	if st.SMTPMode != "live" {
		t.Errorf("SMTPMode = %q", st.SMTPMode)
	}
	if st.Delivered != 12 || st.Failed != 2 {
		t.Errorf("totals = %d/%d", st.Delivered, st.Failed)
	}
}

func TestStatusHandlerDegraded(t *testing.T) {
	req := httptest.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()

	StatusHandler(func() string { return "reconnecting" }, &fakeDepther{err: errors.New("connection refused")}, nil, false)(w, req)

	var st ServiceStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("response JSON parse error: %v", err)
	}
	if st.SMTPMode != "degraded" {
		t.Errorf("SMTPMode = %q", st.SMTPMode)
	}
	if st.QueueError == "" {
		t.Error("QueueError should carry the length failure")
	}
}
