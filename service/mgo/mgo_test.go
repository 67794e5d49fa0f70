package mgo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManagerNotReady(t *testing.T) {
	m := NewManager()
	_, ok := m.TryGetDB()
	assert.False(t, ok)
	assert.NoError(t, m.Err())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.WaitReady(ctx), context.DeadlineExceeded)

	select {
	case <-m.Ready():
		t.Fatal("ready before connect")
	default:
	}
}
