package mgo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotReadyBeforeStart(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Error(t, WaitReady(ctx, Manager()))
	_, ok := TryGetDB()
	assert.False(t, ok)
	assert.Panics(t, func() { GetDB() })
	assert.NotPanics(t, Close)
}
