package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/wavelength/internal/game"
	"github.com/cory-johannsen/wavelength/internal/protocol"
)

// Wire status values for request outcomes.
const (
	statusSuccess = "Success"
	statusFailure = "Failure"
)

// Handler is the per-connection dispatcher: it decodes inbound messages,
// invokes the registry or session operation the message implies, and
// produces direct replies and broadcasts.
//
// Within one connection messages are handled strictly in receipt order.
// Cross-connection mutation of the same game serializes on the session and
// registry locks.
type Handler struct {
	registry  *game.Registry
	directory *Directory
	logger    *zap.Logger
}

// NewHandler creates a dispatcher backed by the given registry and client
// directory.
//
// Precondition: registry, directory, and logger must be non-nil.
func NewHandler(registry *game.Registry, directory *Directory, logger *zap.Logger) *Handler {
	return &Handler{
		registry:  registry,
		directory: directory,
		logger:    logger,
	}
}

// HandleSession runs the receive-dispatch-reply loop for one connection
// until the peer disconnects, a transport error occurs, or the context is
// cancelled. The connection's directory entry is removed on the way out.
func (h *Handler) HandleSession(ctx context.Context, conn *protocol.Conn) {
	defer h.directory.Remove(conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := conn.ReceiveMessage()
		if err != nil {
			if errors.Is(err, protocol.ErrConnectionClosed) {
				h.logger.Debug("peer disconnected")
				return
			}

			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				// The framing layer is still intact, so report the bad
				// message and keep the connection alive.
				h.logger.Warn("undecodable message", zap.Error(err))
				reply := protocol.NewMessage(msg.Kind()).
					Set("status", statusFailure).
					Set("reason", decodeErr.Reason)
				if err := conn.SendMessage(reply); err != nil {
					return
				}
				continue
			}

			h.logger.Warn("transport failure, dropping connection", zap.Error(err))
			return
		}

		if err := h.dispatch(conn, msg); err != nil {
			h.logger.Debug("session loop ending", zap.Error(err))
			return
		}
	}
}

// dispatch routes one decoded message to its handler. A non-nil error
// means the connection is no longer writable and the loop should end.
func (h *Handler) dispatch(conn *protocol.Conn, msg *protocol.Message) error {
	switch msg.Kind() {
	case protocol.KindCreate:
		return h.handleCreate(conn, msg)
	case protocol.KindJoin:
		return h.handleJoin(conn, msg)
	case protocol.KindList:
		return h.handleList(conn)
	case protocol.KindStart:
		return h.handleStart(conn, msg)
	case protocol.KindCard:
		return h.handleCard(conn, msg)
	case protocol.KindClue:
		return h.handleClue(conn, msg)
	case protocol.KindGuess:
		return h.handleGuess(conn, msg)
	case protocol.KindScore:
		return h.handleScore(conn, msg)
	case protocol.KindEnd:
		return h.handleEnd(conn, msg)
	case protocol.KindChat:
		h.handleChat(msg)
		return nil
	default:
		reply := protocol.NewMessage(msg.Kind()).
			Set("status", statusFailure).
			Set("reason", fmt.Sprintf("unsupported request %s", msg.Kind()))
		return conn.SendMessage(reply)
	}
}

// handleCreate allocates a new game and binds the creator's connection.
func (h *Handler) handleCreate(conn *protocol.Conn, msg *protocol.Message) error {
	name := msg.Value("game_name")
	pin := msg.Value("pin")
	username := msg.Value("username")

	reply := protocol.NewMessage(protocol.KindCreate)
	sess, err := h.registry.Create(name, pin, username)
	if err != nil {
		h.logger.Info("create rejected",
			zap.String("game_name", name),
			zap.Error(err),
		)
		reply.Set("status", statusFailure).Set("reason", err.Error())
		return conn.SendMessage(reply)
	}

	h.directory.Bind(conn, sess.ID(), username)
	h.logger.Info("game created",
		zap.String("game_id", sess.ID()),
		zap.String("game_name", name),
		zap.String("creator", username),
	)
	reply.Set("status", statusSuccess).Set("game_id", sess.ID())
	return conn.SendMessage(reply)
}

// handleJoin adds the sender to an existing game and binds its connection.
func (h *Handler) handleJoin(conn *protocol.Conn, msg *protocol.Message) error {
	name := msg.Value("game_name")
	pin := msg.Value("pin")
	username := msg.Value("username")

	reply := protocol.NewMessage(protocol.KindJoin)
	sess, err := h.registry.Join(name, pin, username)
	if err != nil {
		reply.Set("status", statusFailure).Set("reason", err.Error())
		return conn.SendMessage(reply)
	}

	h.directory.Bind(conn, sess.ID(), username)
	h.logger.Info("player joined",
		zap.String("game_id", sess.ID()),
		zap.String("username", username),
	)
	reply.Set("status", statusSuccess).Set("game_id", sess.ID())
	return conn.SendMessage(reply)
}

// handleList replies with the names of joinable lobbies.
func (h *Handler) handleList(conn *protocol.Conn) error {
	games := h.registry.ListLobbies()
	listing := "No available games"
	if len(games) > 0 {
		listing = strings.Join(games, ", ")
	}
	reply := protocol.NewMessage(protocol.KindList).
		Set("status", statusSuccess).
		Set("games", listing)
	return conn.SendMessage(reply)
}

// handleChat relays a chat line to everyone in the sender's game.
func (h *Handler) handleChat(msg *protocol.Message) {
	relay := protocol.NewMessage(protocol.KindChat).
		Set("from", msg.Value("username")).
		Set("text", msg.Value("text"))
	h.directory.Broadcast(msg.Value("game_id"), relay)
}

// handleStart begins the game and announces the teams and round-one roles
// to every member.
func (h *Handler) handleStart(conn *protocol.Conn, msg *protocol.Message) error {
	gameID := msg.Value("game_id")
	reply := protocol.NewMessage(protocol.KindStart)

	sess, ok := h.registry.Get(gameID)
	if !ok {
		reply.Set("status", statusFailure).Set("reason", game.ErrGameNotFound.Error())
		return conn.SendMessage(reply)
	}

	summary, err := sess.Begin()
	if err != nil {
		reply.Set("status", statusFailure).Set("reason", err.Error())
		return conn.SendMessage(reply)
	}

	h.logger.Info("game started",
		zap.String("game_id", gameID),
		zap.String("psychic", summary.Round.Psychic),
	)
	announce := protocol.NewMessage(protocol.KindStart).
		Set("text", fmt.Sprintf("Teams set. TeamA: %s | TeamB: %s\n%s",
			strings.Join(summary.TeamA, " and "),
			strings.Join(summary.TeamB, " and "),
			roundText(summary.Round)))
	h.directory.Broadcast(gameID, announce)
	return nil
}

// handleCard draws a card for the psychic: the public half broadcasts to
// the whole game, the hidden target range goes only to the psychic.
func (h *Handler) handleCard(conn *protocol.Conn, msg *protocol.Message) error {
	gameID := msg.Value("game_id")
	username := msg.Value("username")

	sess, ok := h.registry.Get(gameID)
	if !ok {
		reply := protocol.NewMessage(protocol.KindCard).
			Set("status", statusFailure).
			Set("reason", game.ErrGameNotFound.Error())
		return conn.SendMessage(reply)
	}

	card, err := sess.Draw(username)
	if err != nil {
		if errors.Is(err, game.ErrNotPsychic) {
			warn := protocol.NewMessage(protocol.KindCard).
				Set("error", "Only the psychic can draw the card.")
			return conn.SendMessage(warn)
		}
		reply := protocol.NewMessage(protocol.KindCard).
			Set("status", statusFailure).
			Set("reason", err.Error())
		return conn.SendMessage(reply)
	}

	public := protocol.NewMessage(protocol.KindCard).
		Set("topic", card.Topic).
		Set("left", card.LeftHint).
		Set("right", card.RightHint).
		Set("psychic", username)
	h.directory.Broadcast(sess.ID(), public)

	secret := protocol.NewMessage(protocol.KindCard).
		Set("target_start", strconv.Itoa(card.TargetStart)).
		Set("target_end", strconv.Itoa(card.TargetEnd))
	h.directory.SendTo(sess.ID(), username, secret)
	return nil
}

// handleClue stores the psychic's clue and broadcasts it.
func (h *Handler) handleClue(conn *protocol.Conn, msg *protocol.Message) error {
	gameID := msg.Value("game_id")
	psychic := msg.Value("psychic")
	clue := msg.Value("clue")

	sess, ok := h.registry.Get(gameID)
	if !ok {
		reply := protocol.NewMessage(protocol.KindClue).
			Set("status", statusFailure).
			Set("reason", game.ErrGameNotFound.Error())
		return conn.SendMessage(reply)
	}

	if err := sess.SubmitClueAs(psychic, clue); err != nil {
		if errors.Is(err, game.ErrNotPsychic) {
			warn := protocol.NewMessage(protocol.KindClue).
				Set("error", "Only the psychic can submit a clue.")
			return conn.SendMessage(warn)
		}
		reply := protocol.NewMessage(protocol.KindClue).
			Set("status", statusFailure).
			Set("reason", err.Error())
		return conn.SendMessage(reply)
	}

	h.directory.Broadcast(sess.ID(), protocol.NewMessage(protocol.KindClue).Set("clue", clue))
	return nil
}

// handleGuess resolves a guess: the scoreboard broadcasts to the game,
// followed by either the game-over announcement or the next round's roles.
func (h *Handler) handleGuess(conn *protocol.Conn, msg *protocol.Message) error {
	gameID := msg.Value("game_id")
	username := msg.Value("username")

	sess, ok := h.registry.Get(gameID)
	if !ok {
		reply := protocol.NewMessage(protocol.KindGuess).
			Set("status", statusFailure).
			Set("reason", game.ErrGameNotFound.Error())
		return conn.SendMessage(reply)
	}

	value, err := strconv.Atoi(msg.Value("value"))
	if err != nil {
		reply := protocol.NewMessage(protocol.KindGuess).
			Set("status", statusFailure).
			Set("reason", game.ErrGuessRange.Error())
		return conn.SendMessage(reply)
	}

	outcome, err := sess.Guess(username, value)
	if err != nil {
		if errors.Is(err, game.ErrNotGuesser) {
			warn := protocol.NewMessage(protocol.KindGuess).
				Set("error", "Only the guesser can submit a guess.")
			return conn.SendMessage(warn)
		}
		reply := protocol.NewMessage(protocol.KindGuess).
			Set("status", statusFailure).
			Set("reason", err.Error())
		return conn.SendMessage(reply)
	}

	score := protocol.NewMessage(protocol.KindScore).
		Set("team_guess", strconv.Itoa(outcome.Result.Guess)).
		Set("target_range", outcome.Result.TargetRange).
		Set("target_center", strconv.Itoa(outcome.Result.TargetCenter)).
		Set("points", strconv.Itoa(outcome.Result.Points)).
		Set("TeamA", strconv.Itoa(outcome.Result.TeamA)).
		Set("TeamB", strconv.Itoa(outcome.Result.TeamB))
	h.directory.Broadcast(sess.ID(), score)

	if outcome.Winner != "" {
		h.logger.Info("game over",
			zap.String("game_id", sess.ID()),
			zap.String("winner", string(outcome.Winner)),
		)
		end := protocol.NewMessage(protocol.KindEnd).Set("winner", string(outcome.Winner))
		h.directory.Broadcast(sess.ID(), end)
		return nil
	}

	next := protocol.NewMessage(protocol.KindStart).
		Set("text", "Next round! "+roundText(*outcome.Next))
	h.directory.Broadcast(sess.ID(), next)
	return nil
}

// handleScore replies with the current scoreboard, sender only.
func (h *Handler) handleScore(conn *protocol.Conn, msg *protocol.Message) error {
	gameID := msg.Value("game_id")
	reply := protocol.NewMessage(protocol.KindScore)

	sess, ok := h.registry.Get(gameID)
	if !ok {
		reply.Set("status", statusFailure).Set("reason", game.ErrGameNotFound.Error())
		return conn.SendMessage(reply)
	}

	scores := sess.Scores()
	reply.Set("TeamA", strconv.Itoa(scores[game.TeamA])).
		Set("TeamB", strconv.Itoa(scores[game.TeamB]))
	return conn.SendMessage(reply)
}

// handleEnd marks the game ended and reports the winner, if any, to the
// sender.
func (h *Handler) handleEnd(conn *protocol.Conn, msg *protocol.Message) error {
	gameID := msg.Value("game_id")
	reply := protocol.NewMessage(protocol.KindEnd)

	sess, ok := h.registry.Get(gameID)
	if !ok {
		reply.Set("status", statusFailure).Set("reason", game.ErrGameNotFound.Error())
		return conn.SendMessage(reply)
	}

	winner, won := sess.Winner()
	h.registry.End(gameID)
	h.logger.Info("game ended by request", zap.String("game_id", gameID))

	reply.Set("status", statusSuccess)
	if won {
		reply.Set("winner", string(winner))
	} else {
		reply.Set("winner", "No winner yet")
	}
	return conn.SendMessage(reply)
}

// roundText renders a round announcement line.
func roundText(r game.RoundStart) string {
	return fmt.Sprintf("Round %d: %s's turn. Psychic is %s, guesser is %s",
		r.Round, r.Team, r.Psychic, r.Guesser)
}
