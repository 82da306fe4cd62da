package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cdr.dev/slog/v3"
	"github.com/redis/go-redis/v9"

	"rollcall/internal/attendance"
	"rollcall/internal/metrics"
)

// Source loads a class roster from the school backend.
type Source interface {
	StudentsByClass(ctx context.Context, classID int64) ([]attendance.Student, error)
}

// Cache is a read-through roster cache in Redis. A nil client or a zero TTL
// turns it into a plain pass-through. Redis problems never fail a load; the
// source is asked instead.
type Cache struct {
	src Source
	rdb *redis.Client
	ttl time.Duration
	log slog.Logger
}

// New creates a roster cache in front of src.
func New(src Source, rdb *redis.Client, ttl time.Duration, log slog.Logger) *Cache {
	return &Cache{src: src, rdb: rdb, ttl: ttl, log: log.Named("roster")}
}

func key(classID int64) string {
	return fmt.Sprintf("roster:class:%d", classID)
}

func (c *Cache) enabled() bool { return c.rdb != nil && c.ttl > 0 }

// Load returns the students of classID. Failures are reported as
// *attendance.RosterLoadError and never retried.
func (c *Cache) Load(ctx context.Context, classID int64) ([]attendance.Student, error) {
	if classID <= 0 {
		return nil, &attendance.RosterLoadError{ClassID: classID, Err: attendance.ErrInvalidClass}
	}
	if c.enabled() {
		if students, ok := c.get(ctx, classID); ok {
			return students, nil
		}
	}

	students, err := c.src.StudentsByClass(ctx, classID)
	if err != nil {
		return nil, &attendance.RosterLoadError{ClassID: classID, Err: err}
	}
	if students == nil {
		students = []attendance.Student{}
	}
	if c.enabled() {
		c.put(ctx, classID, students)
	}
	return students, nil
}

// Invalidate drops the cached roster of classID.
func (c *Cache) Invalidate(ctx context.Context, classID int64) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, key(classID)).Err()
}

func (c *Cache) get(ctx context.Context, classID int64) ([]attendance.Student, bool) {
	raw, err := c.rdb.Get(ctx, key(classID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.RosterCache.WithLabelValues("miss").Inc()
		} else {
			metrics.RosterCache.WithLabelValues("error").Inc()
			c.log.Warn(ctx, "roster cache read failed", slog.F("class_id", classID), slog.Error(err))
		}
		return nil, false
	}
	var students []attendance.Student
	if err := json.Unmarshal(raw, &students); err != nil {
		metrics.RosterCache.WithLabelValues("error").Inc()
		c.log.Warn(ctx, "roster cache entry corrupt", slog.F("class_id", classID), slog.Error(err))
		return nil, false
	}
	metrics.RosterCache.WithLabelValues("hit").Inc()
	return students, true
}

func (c *Cache) put(ctx context.Context, classID int64, students []attendance.Student) {
	raw, err := json.Marshal(students)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(classID), raw, c.ttl).Err(); err != nil {
		c.log.Warn(ctx, "roster cache write failed", slog.F("class_id", classID), slog.Error(err))
	}
}
