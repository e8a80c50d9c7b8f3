package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/rehearse/internal/realtime"
)

const (
	DefaultStream = "turn:stream"
	DefaultGroup  = "turn-workers"

	// EventTurnDone closes a turn's reply channel. It never reaches a client.
	EventTurnDone = "turn-done"
)

// ReplyChannel is the pub/sub channel a turn's events are published on.
func ReplyChannel(requestID string) string { return "turn:reply:" + requestID }

// TurnWorkerPool consumes turn requests from a Redis stream and publishes
// each emitted event back on the request's reply channel.
type TurnWorkerPool struct {
	Redis      redis.UniversalClient
	Process    realtime.ProcessFunc
	NumWorkers int
	Timeout    time.Duration

	Logger logrus.FieldLogger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *TurnWorkerPool) defaults() error {
	if p.Redis == nil || p.Process == nil {
		return errors.New("TurnWorkerPool missing dependency: Redis/Process must be set")
	}
	if p.Stream == "" {
		p.Stream = DefaultStream
	}
	if p.Group == "" {
		p.Group = DefaultGroup
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 4
	}
	if p.Timeout <= 0 {
		p.Timeout = 90 * time.Second
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}
	return nil
}

// Run starts the consumers and blocks until ctx is cancelled.
func (p *TurnWorkerPool) Run(ctx context.Context) error {
	if err := p.defaults(); err != nil {
		return err
	}
	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	done := make(chan struct{}, p.NumWorkers)
	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go func() {
			defer func() { done <- struct{}{} }()
			p.runConsumer(ctx, consumer)
		}()
	}
	p.Logger.WithFields(logrus.Fields{"stream": p.Stream, "group": p.Group, "workers": p.NumWorkers}).Info("turn workers started")
	for i := 0; i < p.NumWorkers; i++ {
		<-done
	}
	return nil
}

func (p *TurnWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			p.Logger.WithError(err).WithField("consumer", consumer).Warn("stream read failed")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func (p *TurnWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	req, err := RequestFromValues(msg.Values)
	if err != nil {
		p.Logger.WithError(err).WithField("redis_id", msg.ID).Warn("dropping malformed turn request")
		return
	}
	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":   msg.ID,
		"session_id": req.SessionID,
		"request_id": req.RequestID,
	})

	emit := &publisher{rdb: p.Redis, ctx: ctx, channel: ReplyChannel(req.RequestID)}
	tctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	start := time.Now()
	if err := p.Process(tctx, req, emit); err != nil {
		log.WithError(err).Warn("turn finished with error")
	} else {
		log.WithField("latency_ms", time.Since(start).Milliseconds()).Info("turn processed")
	}
	if err := emit.Emit(EventTurnDone, nil); err != nil {
		log.WithError(err).Warn("failed to publish turn-done")
	}
}

// publisher is the realtime.Emitter a worker hands to the turn.
type publisher struct {
	rdb     redis.UniversalClient
	ctx     context.Context
	channel string
}

func (e *publisher) Emit(event string, data any) error {
	frame, err := realtime.Encode(event, data)
	if err != nil {
		return err
	}
	return e.rdb.Publish(e.ctx, e.channel, frame).Err()
}

// StreamValues is the XADD field set for one turn request.
func StreamValues(req realtime.TurnRequest) (map[string]any, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"request_id": req.RequestID,
		"session_id": req.SessionID,
		"payload":    string(raw),
	}, nil
}

func RequestFromValues(values map[string]any) (realtime.TurnRequest, error) {
	var req realtime.TurnRequest
	s, _ := values["payload"].(string)
	if s == "" {
		return req, errors.New("missing payload")
	}
	if err := json.Unmarshal([]byte(s), &req); err != nil {
		return req, fmt.Errorf("decode payload: %w", err)
	}
	if req.RequestID == "" || req.SessionID == "" || req.UserID == "" {
		return req, errors.New("request_id, session_id and user_id are required")
	}
	return req, nil
}
