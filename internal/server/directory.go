package server

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/wavelength/internal/protocol"
)

// binding records which game and username a connection belongs to.
type binding struct {
	gameID   string
	username string
}

// Directory tracks, per connection, which game and username it is bound
// to, supporting targeted and broadcast delivery. All methods are safe for
// concurrent use; delivery iterates a snapshot so connects and disconnects
// during a broadcast cannot corrupt iteration.
type Directory struct {
	mu     sync.Mutex
	conns  map[*protocol.Conn]binding
	logger *zap.Logger
}

// NewDirectory creates an empty client directory.
//
// Precondition: logger must be non-nil.
func NewDirectory(logger *zap.Logger) *Directory {
	return &Directory{
		conns:  make(map[*protocol.Conn]binding),
		logger: logger,
	}
}

// Bind associates a connection with a game and username. Rebinding an
// already-tracked connection overwrites its association.
func (d *Directory) Bind(conn *protocol.Conn, gameID, username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns[conn] = binding{gameID: gameID, username: username}
}

// Remove drops a connection from the directory. Unknown connections are a
// no-op.
func (d *Directory) Remove(conn *protocol.Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conns, conn)
}

// Lookup returns the game id and username bound to conn.
//
// Postcondition: Returns ("", "", false) for an untracked connection.
func (d *Directory) Lookup(conn *protocol.Conn) (string, string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.conns[conn]
	return b.gameID, b.username, ok
}

// Count returns the number of tracked connections.
func (d *Directory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Broadcast delivers msg to every connection bound to gameID. Individual
// delivery failures are logged and skipped; they never abort delivery to
// the remaining recipients.
func (d *Directory) Broadcast(gameID string, msg *protocol.Message) {
	for _, conn := range d.snapshot(gameID, "") {
		d.deliver(conn, gameID, msg)
	}
}

// SendTo delivers msg only to the connection bound to gameID as username.
func (d *Directory) SendTo(gameID, username string, msg *protocol.Message) {
	for _, conn := range d.snapshot(gameID, username) {
		d.deliver(conn, gameID, msg)
	}
}

// snapshot collects matching connections under the lock so delivery can
// happen outside it. An empty username matches every member of the game.
func (d *Directory) snapshot(gameID, username string) []*protocol.Conn {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*protocol.Conn
	for conn, b := range d.conns {
		if b.gameID != gameID {
			continue
		}
		if username != "" && b.username != username {
			continue
		}
		out = append(out, conn)
	}
	return out
}

func (d *Directory) deliver(conn *protocol.Conn, gameID string, msg *protocol.Message) {
	if err := conn.SendMessage(msg); err != nil {
		d.logger.Debug("dropping undeliverable message",
			zap.String("game_id", gameID),
			zap.String("kind", msg.Kind().String()),
			zap.Error(err),
		)
	}
}
