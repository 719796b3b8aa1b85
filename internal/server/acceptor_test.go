package server

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/wavelength/internal/config"
	"github.com/cory-johannsen/wavelength/internal/protocol"
)

// echoSession is a test SessionHandler that echoes every message back to the
// client with an added reply field.
type echoSession struct {
	sessionCount atomic.Int32
}

func (h *echoSession) HandleSession(_ context.Context, conn *protocol.Conn) {
	h.sessionCount.Add(1)
	for {
		msg, err := conn.ReceiveMessage()
		if err != nil {
			return
		}
		reply := protocol.NewMessage(msg.Kind()).Set("echo", msg.Value("text"))
		if err := conn.SendMessage(reply); err != nil {
			return
		}
	}
}

func waitForListening(t *testing.T, acc *Acceptor) string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if acc.IsRunning() && acc.Addr() != "" {
			return acc.Addr()
		}
		select {
		case <-deadline:
			t.Fatal("acceptor did not start in time")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestAcceptorStartAndStop(t *testing.T) {
	logger := zaptest.NewLogger(t)
	handler := &echoSession{}
	cfg := config.ListenConfig{
		Host:         "127.0.0.1",
		Port:         0, // random port
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	acc := NewAcceptor(cfg, handler, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- acc.ListenAndServe()
	}()

	addr := waitForListening(t, acc)

	raw, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	client := protocol.NewConn(raw, 2*time.Second, 2*time.Second)

	require.NoError(t, client.SendMessage(
		protocol.NewMessage(protocol.KindChat).Set("text", "hello")))
	reply, err := client.ReceiveMessage()
	require.NoError(t, err)
	assert.Equal(t, protocol.KindChat, reply.Kind())
	assert.Equal(t, "hello", reply.Value("echo"))

	require.NoError(t, client.Close())

	acc.Stop()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("acceptor did not stop in time")
	}

	assert.Equal(t, int32(1), handler.sessionCount.Load())
}

func TestAcceptorMultipleClients(t *testing.T) {
	logger := zaptest.NewLogger(t)
	handler := &echoSession{}
	cfg := config.ListenConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	acc := NewAcceptor(cfg, handler, logger)

	go func() {
		_ = acc.ListenAndServe()
	}()

	addr := waitForListening(t, acc)

	const numClients = 3
	clients := make([]*protocol.Conn, numClients)
	for i := 0; i < numClients; i++ {
		raw, err := net.DialTimeout("tcp", addr, 2*time.Second)
		require.NoError(t, err)
		clients[i] = protocol.NewConn(raw, 2*time.Second, 2*time.Second)
	}

	// Each client exchanges one message, proving every session is live.
	for i, client := range clients {
		require.NoError(t, client.SendMessage(
			protocol.NewMessage(protocol.KindChat).Set("text", "ping")))
		reply, err := client.ReceiveMessage()
		require.NoError(t, err, "client %d", i)
		assert.Equal(t, "ping", reply.Value("echo"))
	}

	for _, client := range clients {
		_ = client.Close()
	}

	// Give sessions time to complete
	time.Sleep(100 * time.Millisecond)

	acc.Stop()
	assert.Equal(t, int32(numClients), handler.sessionCount.Load())
}

func TestAcceptorStopUnblocksSessions(t *testing.T) {
	logger := zaptest.NewLogger(t)
	handler := &echoSession{}
	cfg := config.ListenConfig{
		Host: "127.0.0.1",
		Port: 0,
		// No read timeout: the session blocks until the conn closes.
	}

	acc := NewAcceptor(cfg, handler, logger)
	go func() {
		_ = acc.ListenAndServe()
	}()

	addr := waitForListening(t, acc)

	raw, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer raw.Close()

	// Let the server pick up the connection before stopping.
	deadline := time.After(2 * time.Second)
	for handler.sessionCount.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("session never started")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	done := make(chan struct{})
	go func() {
		acc.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked on an idle session")
	}
}
