package net

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

const shutdownPollInterval = 500 * time.Millisecond

type (
	// ShutdownListener counts the connections accepted by the wrapped
	// listener that were not closed yet, including the hijacked ones
	// that http.Server.Shutdown does not wait for.
	ShutdownListener struct {
		net.Listener
		activeConns atomic.Int64
	}

	shutdownListenerConn struct {
		net.Conn
		listener *ShutdownListener
		once     sync.Once
	}
)

var _ net.Listener = &ShutdownListener{}

func NewShutdownListener(l net.Listener) *ShutdownListener {
	return &ShutdownListener{Listener: l}
}

func (l *ShutdownListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	l.activeConns.Add(1)
	return &shutdownListenerConn{Conn: c, listener: l}, nil
}

// ActiveConns returns the number of the open connections.
func (l *ShutdownListener) ActiveConns() int64 {
	return l.activeConns.Load()
}

// Shutdown waits until all the accepted connections are closed, or until
// ctx is done.
func (l *ShutdownListener) Shutdown(ctx context.Context) error {
	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for {
		n := l.activeConns.Load()
		if n == 0 {
			return nil
		}

		log.Debugf("Waiting for %d open connections", n)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *shutdownListenerConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() { c.listener.activeConns.Add(-1) })
	return err
}
