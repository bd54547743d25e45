package session

import (
	"context"
	"errors"
)

// ErrConnClosed marks an orderly close by the remote end. Any other receive
// failure counts as an abnormal termination; the distinction only changes
// how the departure is logged.
var ErrConnClosed = errors.New("connection closed by peer")

// Participant is the send/receive capability of one connected player. The
// websocket package provides the real implementation; tests substitute fakes.
//
// Receive blocks until the next inbound message, a transport failure, or
// cancellation of ctx. After a cancelled Receive the participant must not be
// used for further sends by the caller.
type Participant interface {
	Receive(ctx context.Context) ([]byte, error)
	Send(v any) error
	Close() error
}
