package audit

import (
	"context"

	"cdr.dev/slog/v3"

	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/schoolapi"
)

// Consumer writes an audit line for every saved attendance batch.
type Consumer struct {
	q   queue.Queue
	log slog.Logger
	// handled is called after each message; tests use it to synchronize.
	handled func(queue.Message, error)
}

// New creates a consumer reading from q.
func New(q queue.Queue, log slog.Logger) *Consumer {
	return &Consumer{q: q, log: log.Named("audit"), handled: func(queue.Message, error) {}}
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.q.Consume(ctx)
	if err != nil {
		return err
	}
	c.log.Info(ctx, "audit consumer started")
	for msg := range messages {
		err := c.handle(ctx, msg)
		c.handled(msg, err)
	}
	return ctx.Err()
}

func (c *Consumer) handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != queue.TypeBatchSaved {
		metrics.QueueEvents.WithLabelValues(msg.Type, "skipped").Inc()
		c.log.Debug(ctx, "ignoring message", slog.F("type", msg.Type))
		return nil
	}
	var evt schoolapi.BatchSaved
	if err := msg.Decode(&evt); err != nil {
		metrics.QueueEvents.WithLabelValues(msg.Type, "invalid").Inc()
		c.log.Warn(ctx, "undecodable batch event", slog.Error(err))
		return err
	}
	for _, s := range evt.Sessions {
		c.log.Info(ctx, "attendance saved",
			slog.F("batch_id", evt.BatchID),
			slog.F("teacher_id", s.TeacherID),
			slog.F("class_id", s.ClassID),
			slog.F("date", s.Date),
			slog.F("present", s.Present),
			slog.F("total", s.Total),
		)
	}
	metrics.QueueEvents.WithLabelValues(msg.Type, "ok").Inc()
	return nil
}
