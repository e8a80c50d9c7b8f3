package realtime

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// TurnDispatcher hands one audio turn to whatever runs it. Dispatch returns
// an error only when the turn could not be handed off; failures inside the
// turn are reported to emit as turn-error events.
type TurnDispatcher interface {
	Dispatch(ctx context.Context, req TurnRequest, emit Emitter) error
}

// ProcessFunc runs one turn to completion, emitting its events as it goes.
type ProcessFunc func(ctx context.Context, req TurnRequest, emit Emitter) error

// InlineDispatcher runs turns in the calling goroutine.
type InlineDispatcher struct {
	Process ProcessFunc
	Timeout time.Duration
	Log     logrus.FieldLogger
}

func (d InlineDispatcher) Dispatch(ctx context.Context, req TurnRequest, emit Emitter) error {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	if err := d.Process(ctx, req, emit); err != nil && d.Log != nil {
		d.Log.WithFields(logrus.Fields{
			"request_id": req.RequestID,
			"session_id": req.SessionID,
		}).WithError(err).Warn("turn finished with error")
	}
	return nil
}
