package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
)

func TestRedisHealthy(t *testing.T) {
	ctx := context.Background()

	var none *Redis
	assert.False(t, none.Healthy(ctx))
	assert.Nil(t, none.Raw())
	assert.NoError(t, none.Close())
	assert.Nil(t, NewRedis(""))

	mr := miniredis.RunT(t)
	r := NewRedis(mr.Addr())
	t.Cleanup(func() { _ = r.Close() })
	assert.True(t, r.Healthy(ctx))
	assert.NotNil(t, r.Raw())

	mr.Close()
	assert.False(t, r.Healthy(ctx))
}

func TestDBNilSafe(t *testing.T) {
	var db *DB
	assert.False(t, db.Healthy(context.Background()))
	assert.NoError(t, db.Close())
}
