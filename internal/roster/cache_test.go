package roster

import (
	"context"
	"errors"
	"testing"
	"time"

	"cdr.dev/slog/v3/sloggers/slogtest"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/attendance"
)

type countingSource struct {
	calls    int
	students map[int64][]attendance.Student
	err      error
}

func (s *countingSource) StudentsByClass(_ context.Context, classID int64) ([]attendance.Student, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.students[classID], nil
}

func setup(t *testing.T, ttl time.Duration) (*Cache, *countingSource, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	src := &countingSource{students: map[int64][]attendance.Student{
		5: {{ID: 1, Name: "Ada", Email: "ada@school.test"}, {ID: 2, Name: "Ben", Email: "ben@school.test"}},
	}}
	logger := slogtest.Make(t, &slogtest.Options{IgnoreErrors: true})
	return New(src, rdb, ttl, logger), src, mr
}

func TestCacheLoad(t *testing.T) {
	ctx := context.Background()
	cache, src, mr := setup(t, time.Minute)

	first, err := cache.Load(ctx, 5)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.True(t, mr.Exists("roster:class:5"))

	second, err := cache.Load(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.calls, "second load must be served from redis")

	mr.FastForward(2 * time.Minute)
	_, err = cache.Load(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls, "expired entry must hit the source")
}

func TestCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	cache, src, mr := setup(t, time.Minute)

	_, err := cache.Load(ctx, 5)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, 5))
	assert.False(t, mr.Exists("roster:class:5"))

	_, err = cache.Load(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCacheErrors(t *testing.T) {
	ctx := context.Background()
	cache, src, _ := setup(t, time.Minute)

	tests := []struct {
		name    string
		classID int64
		srcErr  error
		wantErr error
	}{
		{name: "invalid class", classID: 0, wantErr: attendance.ErrInvalidClass},
		{name: "negative class", classID: -3, wantErr: attendance.ErrInvalidClass},
		{name: "source failure", classID: 8, srcErr: errors.New("503"), wantErr: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src.err = tt.srcErr
			defer func() { src.err = nil }()

			_, err := cache.Load(ctx, tt.classID)
			var rle *attendance.RosterLoadError
			require.ErrorAs(t, err, &rle)
			assert.Equal(t, tt.classID, rle.ClassID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.ErrorIs(t, err, tt.srcErr)
			}
		})
	}
}

func TestCacheSurvivesRedisOutage(t *testing.T) {
	ctx := context.Background()
	cache, src, mr := setup(t, time.Minute)
	mr.Close()

	students, err := cache.Load(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, students, 2)
	assert.Equal(t, 1, src.calls)
}

func TestCacheDisabled(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{students: map[int64][]attendance.Student{}}
	cache := New(src, nil, 0, slogtest.Make(t, &slogtest.Options{}))

	students, err := cache.Load(ctx, 3)
	require.NoError(t, err)
	assert.NotNil(t, students)
	assert.Empty(t, students)

	_, _ = cache.Load(ctx, 3)
	assert.Equal(t, 2, src.calls)
	assert.NoError(t, cache.Invalidate(ctx, 3))
}
