package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupStreamSink(t *testing.T, maxLen int64) (*StreamSink, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStreamSink(client, "dctwin:events", maxLen, zap.NewNop()), client
}

func TestStreamSink_Write(t *testing.T) {
	sink, client := setupStreamSink(t, 0)
	ctx := context.Background()

	id, err := sink.Write(ctx, Event{
		Type:    EventDeviceMoved,
		SiteID:  "S1",
		Payload: map[string]string{"device_id": "d1"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := client.XRange(ctx, "dctwin:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, "device_moved", msgs[0].Values["type"])
	assert.Equal(t, "S1", msgs[0].Values["site_id"])

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &payload))
	assert.Equal(t, "d1", payload["device_id"])
}

func TestStreamSink_Run(t *testing.T) {
	sink, client := setupStreamSink(t, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 4)
	done := make(chan struct{})
	go func() {
		sink.Run(ctx, events)
		close(done)
	}()

	events <- Event{Type: EventAnomaliesSaved, SiteID: "S1", Payload: map[string]int{"saved": 2}}
	events <- Event{Type: EventAnomalyUpdated, SiteID: "S1"}
	close(events)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sink did not stop after channel close")
	}

	n, err := client.XLen(context.Background(), "dctwin:events").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStreamSink_WriteFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	sink := NewStreamSink(client, "dctwin:events", 0, nil)

	mr.Close()
	_, err := sink.Write(context.Background(), Event{Type: EventDeviceDeleted})
	assert.Error(t, err)
}
