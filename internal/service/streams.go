package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamSink appends bus events to a Redis stream so other systems can
// consume the audit feed with XREAD or consumer groups.
type StreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewStreamSink creates a sink writing to stream. maxLen > 0 caps the stream
// length approximately.
func NewStreamSink(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *StreamSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamSink{client: client, stream: stream, maxLen: maxLen, logger: logger}
}

// Write appends one event and returns its stream id
func (s *StreamSink) Write(ctx context.Context, event Event) (string, error) {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event payload: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"type":      string(event.Type),
			"site_id":   event.SiteID,
			"data":      string(data),
			"timestamp": time.Now().Unix(),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append to stream %s: %w", s.stream, err)
	}
	return id, nil
}

// Run forwards events until ctx is cancelled or events is closed.
// Write failures are logged and the event is dropped.
func (s *StreamSink) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if _, err := s.Write(ctx, event); err != nil {
				s.logger.Warn("dropping event for redis stream",
					zap.String("stream", s.stream),
					zap.String("event_type", string(event.Type)),
					zap.Error(err),
				)
			}
		}
	}
}
