package net

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownListener(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	sl := NewShutdownListener(l)
	defer sl.Close()

	client, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	conn, err := sl.Accept()
	require.NoError(t, err)
	assert.Equal(t, int64(1), sl.ActiveConns())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sl.Shutdown(ctx), context.DeadlineExceeded)

	require.NoError(t, conn.Close())
	conn.Close()
	assert.Equal(t, int64(0), sl.ActiveConns())
	assert.NoError(t, sl.Shutdown(context.Background()))
}
