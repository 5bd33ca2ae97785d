package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type runDone struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

func (r runDone) Attributes() map[string]string {
	return map[string]string{"status": r.Status}
}

// TestPublisherStoresMessages records payloads in order with sequential IDs.
func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "harvests", runDone{RunID: "r1", Status: "success"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "audit", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "audit", msgs[1].Topic)
	require.Nil(t, msgs[1].Attributes)

	harvests := pub.Topic("harvests")
	require.Len(t, harvests, 1)
	require.Equal(t, "memory-1", harvests[0].ID)
	require.Equal(t, map[string]string{"status": "success"}, harvests[0].Attributes)
	require.JSONEq(t, `{"run_id":"r1","status":"success"}`, string(harvests[0].Data))
}

// TestPublisherFailWith injects publish failures.
func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.FailWith(errors.New("unavailable"))
	_, err := pub.Publish(context.Background(), "t", 1)
	require.Error(t, err)
	pub.FailWith(nil)
	_, err = pub.Publish(context.Background(), "t", 1)
	require.NoError(t, err)
	require.Len(t, pub.Messages(), 1)
}

// TestPublisherRejectsBadInput mirrors the Pub/Sub publisher's validation.
func TestPublisherRejectsBadInput(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "", 1)
	require.Error(t, err)
	_, err = pub.Publish(context.Background(), "t", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
	require.Empty(t, pub.Messages())
}
