package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cdr.dev/slog/v3/sloggers/slogtest"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/schoolapi"
)

func TestConsumerRun(t *testing.T) {
	q := queue.NewInMemory(8)
	c := New(q, slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}))
	results := make(chan error, 8)
	c.handled = func(_ queue.Message, err error) { results <- err }

	ok := metrics.QueueEvents.WithLabelValues(queue.TypeBatchSaved, "ok")
	invalid := metrics.QueueEvents.WithLabelValues(queue.TypeBatchSaved, "invalid")
	okBefore, invalidBefore := testutil.ToFloat64(ok), testutil.ToFloat64(invalid)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	good, err := queue.NewMessage(queue.TypeBatchSaved, schoolapi.BatchSaved{
		BatchID:  "b-1",
		Saved:    2,
		Sessions: []schoolapi.SessionSummary{{TeacherID: 7, ClassID: 5, Date: "2024-03-01", Present: 1, Total: 2}},
	})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, good))
	require.NoError(t, q.Publish(ctx, queue.Message{Type: queue.TypeBatchSaved, Body: json.RawMessage(`"oops"`)}))
	require.NoError(t, q.Publish(ctx, queue.Message{Type: "something.else", Body: json.RawMessage(`{}`)}))

	for i, wantErr := range []bool{false, true, false} {
		select {
		case err := <-results:
			assert.Equal(t, wantErr, err != nil, "message %d", i)
		case <-time.After(3 * time.Second):
			t.Fatalf("message %d not handled", i)
		}
	}
	assert.Equal(t, okBefore+1, testutil.ToFloat64(ok))
	assert.Equal(t, invalidBefore+1, testutil.ToFloat64(invalid))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
