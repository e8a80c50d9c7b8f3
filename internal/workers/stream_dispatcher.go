package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/rehearse/internal/realtime"
)

// StreamDispatcher hands turns to the worker pool through a Redis stream
// and forwards the events the worker publishes back to the caller.
type StreamDispatcher struct {
	Redis   redis.UniversalClient
	Stream  string
	MaxLen  int64
	Timeout time.Duration
	Log     logrus.FieldLogger
}

// Dispatch subscribes before enqueueing so no event can be missed. It
// returns an error only when the request could not be enqueued.
func (d *StreamDispatcher) Dispatch(ctx context.Context, req realtime.TurnRequest, emit realtime.Emitter) error {
	stream := d.Stream
	if stream == "" {
		stream = DefaultStream
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	sub := d.Redis.Subscribe(ctx, ReplyChannel(req.RequestID))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe reply channel: %w", err)
	}

	values, err := StreamValues(req)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{Stream: stream, Values: values}
	if d.MaxLen > 0 {
		args.MaxLen = d.MaxLen
		args.Approx = true
	}
	if err := d.Redis.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("enqueue turn: %w", err)
	}

	wait := time.NewTimer(timeout)
	defer wait.Stop()
	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-wait.C:
			d.log().WithField("request_id", req.RequestID).Warn("turn reply timed out")
			_ = emit.Emit(realtime.EventTurnError, realtime.TurnError{
				RequestID: req.RequestID,
				SessionID: req.SessionID,
				Stage:     "dispatch",
				Code:      "TIMEOUT",
				Message:   "turn timed out",
			})
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			if Forward(m.Payload, emit, d.log()) {
				return nil
			}
		}
	}
}

func (d *StreamDispatcher) log() logrus.FieldLogger {
	if d.Log == nil {
		return logrus.StandardLogger()
	}
	return d.Log
}

// Forward relays one published frame and reports whether it ended the turn.
func Forward(payload string, emit realtime.Emitter, log logrus.FieldLogger) bool {
	var env realtime.Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.WithError(err).Warn("dropping malformed reply frame")
		return false
	}
	if env.Event == EventTurnDone {
		return true
	}
	var data any
	if len(env.Data) > 0 {
		data = env.Data
	}
	if err := emit.Emit(env.Event, data); err != nil {
		log.WithError(err).WithField("event", env.Event).Debug("reply not delivered")
	}
	return false
}
