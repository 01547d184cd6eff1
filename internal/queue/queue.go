// Package queue provides the durable FIFO channel between the event producer
// and the notification worker, backed by a Redis list.
package queue

import (
	"context"
	"errors"
	"net"
	"time"
)

// ErrEmpty is returned by BlockingPop when the timeout elapses with no entry.
// It is an idle tick, not a failure.
var ErrEmpty = errors.New("queue: no entry")

// Queue is the durable queue contract. Append is durable once acknowledged
// and FIFO relative to other appends from the same producer. A successful
// BlockingPop is destructive: the entry is never redelivered.
type Queue interface {
	Append(ctx context.Context, entry []byte) error
	BlockingPop(ctx context.Context, timeout time.Duration) ([]byte, error)
	Length(ctx context.Context) (int64, error)
}

// FailureKind buckets pop-path errors for the worker's retry policy.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureEmpty is the logical blocking-pop timeout: loop again.
	FailureEmpty
	// FailureTimeout is a transport-level timeout: reconnect once immediately and retry.
	FailureTimeout
	// FailureConnection covers lost or refused connections: back off, reconnect, retry.
	FailureConnection
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureEmpty:
		return "empty"
	case FailureTimeout:
		return "timeout"
	case FailureConnection:
		return "connection"
	}
	return "unknown"
}

// Classify maps a BlockingPop error onto the retry policy. Anything that is
// not an idle tick or a transport timeout is treated as a connection failure,
// so the worker always ends up reconnecting rather than dying.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	if errors.Is(err, ErrEmpty) {
		return FailureEmpty
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureConnection
}
