package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger reports queue reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Depther reports the queue backlog size.
type Depther interface {
	Length(ctx context.Context) (int64, error)
}

type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Queue   bool   `json:"queue,omitempty"`
}

// HTTPHandler returns a liveness handler that pings the queue connection
func HTTPHandler(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := Status{OK: true, Message: "ok", Queue: true}

		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
			defer cancel()
			if err := pinger.Ping(ctx); err != nil {
				st.OK = false
				st.Message = "queue ping failed"
				st.Queue = false
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}
}

type ServiceStatus struct {
	WorkerState string `json:"worker_state"`
	QueueDepth  int64  `json:"queue_depth"`
	QueueError  string `json:"queue_error,omitempty"`
	Delivered   int64  `json:"delivered"`
	Failed      int64  `json:"failed"`
	SMTPMode    string `json:"smtp_mode"` // live or degraded
}

// StatusHandler returns a handler reporting worker state, queue backlog,
// send totals and mail transport mode.
func StatusHandler(state func() string, depth Depther, totals func() (delivered, failed int64), smtpConfigured bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := ServiceStatus{SMTPMode: "degraded"}
		if smtpConfigured {
			st.SMTPMode = "live"
		}
		if state != nil {
			st.WorkerState = state()
		}
		if totals != nil {
			st.Delivered, st.Failed = totals()
		}
		if depth != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
			defer cancel()
			n, err := depth.Length(ctx)
			if err != nil {
				st.QueueError = err.Error()
			} else {
				st.QueueDepth = n
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}
}
