package emitter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	ev := &SyncEvent{Type: EventCheckpoint, Platform: "arbitrum-one"}
	assert.Equal(t, "pricewatch.arbitrum-one.checkpoint", Subject("pricewatch", ev))

	ev = &SyncEvent{Type: EventCompleted, Platform: "a.b"}
	assert.Equal(t, "prices.a_b.completed", Subject("prices", ev))
}

func TestNoopAndLog(t *testing.T) {
	ev := &SyncEvent{Type: EventCompleted, PassID: "p", Platform: "ethereum"}
	assert.NoError(t, Noop{}.Emit(context.Background(), ev))
	assert.NoError(t, (&LogEmitter{}).Emit(context.Background(), ev))
}

func runNATSServer(t *testing.T) string {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns.ClientURL()
}

func subscribe(t *testing.T, url, subject string) chan *nats.Msg {
	t.Helper()
	conn, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	msgs := make(chan *nats.Msg, 4)
	_, err = conn.ChanSubscribe(subject, msgs)
	require.NoError(t, err)
	require.NoError(t, conn.Flush())
	return msgs
}

func receive(t *testing.T, msgs chan *nats.Msg) SyncEvent {
	t.Helper()
	select {
	case msg := <-msgs:
		var got SyncEvent
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return SyncEvent{}
	}
}

func TestNATSEmitter_Publishes(t *testing.T) {
	url := runNATSServer(t)
	msgs := subscribe(t, url, "pwtest.ethereum.*")

	e, err := Connect(url, "pwtest", nil)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Emit(context.Background(), &SyncEvent{
		Type: EventCheckpoint, PassID: "abc", Platform: "ethereum", Processed: 5,
	}))
	got := receive(t, msgs)
	assert.Equal(t, EventCheckpoint, got.Type)
	assert.Equal(t, 5, got.Processed)
}

// The syncer emits the completed event on a context detached from
// cancellation, which carries no deadline.
func TestNATSEmitter_CompletedFlushesWithoutDeadline(t *testing.T) {
	url := runNATSServer(t)
	msgs := subscribe(t, url, "pwtest.ethereum.completed")

	e, err := Connect(url, "pwtest", nil)
	require.NoError(t, err)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Emit(context.WithoutCancel(ctx), &SyncEvent{
		Type: EventCompleted, PassID: "abc", Platform: "ethereum", Fetched: 3,
	}))

	got := receive(t, msgs)
	assert.Equal(t, "abc", got.PassID)
	assert.Equal(t, 3, got.Fetched)
}
