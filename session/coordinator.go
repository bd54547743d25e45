package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/duelgrid/tictactoe/events"
	"github.com/duelgrid/tictactoe/utils"
)

// Coordinator owns the session lifecycle: it creates and joins sessions,
// runs one turn loop per bound participant, and tears the whole session down
// the moment either participant's loop ends.
type Coordinator struct {
	registry *Registry
}

// NewCoordinator returns a coordinator backed by the given registry.
func NewCoordinator(r *Registry) *Coordinator {
	return &Coordinator{registry: r}
}

// CreateSession starts a new session with p bound as Player 1. The fresh
// token is sent back to p as the first outbound message, then Player 1's
// turn loop starts. A token collision just means generating another one.
func (c *Coordinator) CreateSession(p Participant) (string, error) {
	for {
		token := utils.GenerateToken()
		s := newSession(token, p)
		if err := c.registry.Create(token, s); err != nil {
			if errors.Is(err, ErrDuplicateToken) {
				log.Warn().Str("token", token).Msg("Token collision, regenerating")
				continue
			}
			return "", err
		}

		if err := p.Send(events.NewGameEvent(token)); err != nil {
			c.registry.Delete(token)
			return "", fmt.Errorf("sending token to creator: %w", err)
		}

		log.Info().Str("token", token).Msg("Player 1 connected to game")
		c.startTurnLoop(s, 1)
		return token, nil
	}
}

// JoinSession binds p as Player 2 of the session identified by token. On
// failure the joiner gets an error notice and no state changes. On success
// both participants are told the game started, each with its own slot
// number, and Player 2's turn loop starts.
func (c *Coordinator) JoinSession(p Participant, token string) error {
	s, err := c.registry.Get(token)
	if err != nil {
		c.send(p, events.ErrorEvent("Invalid token."))
		return err
	}

	if err := s.bindSecond(p); err != nil {
		if errors.Is(err, ErrSessionFull) {
			c.send(p, events.ErrorEvent("This game is already full."))
		} else {
			c.send(p, events.ErrorEvent("Invalid token."))
		}
		return err
	}

	log.Info().Str("token", token).Msg("Player 2 connected to game")
	for slot := 1; slot <= 2; slot++ {
		if q := s.participant(slot); q != nil {
			c.send(q, events.GameStartedEvent(slot))
		}
	}

	c.startTurnLoop(s, 2)
	return nil
}

// startTurnLoop launches the turn loop for one (session, slot) pair. The
// loop's cancel func lives in the session's task set so the sibling's
// teardown can interrupt a pending receive.
func (c *Coordinator) startTurnLoop(s *Session, slot int) {
	ctx, cancel := context.WithCancel(context.Background())
	if !s.addTask(slot, cancel) {
		// teardown won the race; this loop never starts
		cancel()
		return
	}

	go func() {
		err := c.turnLoop(ctx, s, slot)
		if errors.Is(err, context.Canceled) {
			// unwound by the sibling's teardown, which owns cleanup
			return
		}
		c.stopSession(s, slot, err)
	}()
}

// turnLoop drives the receive/validate/apply/broadcast cycle for one
// participant. It returns only when the receive fails: ErrConnClosed for an
// orderly departure, context.Canceled when torn down externally, anything
// else for an abnormal transport failure.
func (c *Coordinator) turnLoop(ctx context.Context, s *Session, slot int) error {
	p := s.participant(slot)
	for {
		data, err := p.Receive(ctx)
		if err != nil {
			return err
		}
		c.handleMessage(s, slot, p, data)
	}
}

// handleMessage validates and applies a single inbound message. It runs
// entirely under the session lock: engine reads and writes are serialized
// against the sibling loop, and broadcasts for one event go out back-to-back
// so both participants see events in the same order.
func (c *Coordinator) handleMessage(s *Session, slot int, p Participant, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.players[1] == nil {
		c.send(p, events.ErrorEvent("Waiting for Player 2 to connect."))
		return
	}

	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		c.send(p, events.ErrorEvent("Malformed request."))
		return
	}
	if env.Type != events.TypeMakeMove {
		c.send(p, events.ErrorEvent("Illegal request. Please send your move."))
		return
	}

	if s.Game.CurrentPlayer() != slot {
		c.send(p, events.ErrorEvent("It is not your turn!"))
		return
	}

	mv, errMsg := decodeMove(env.Content)
	if errMsg != "" {
		c.send(p, events.ErrorEvent(errMsg))
		return
	}

	move, ok := s.Game.MakeMove(*mv.Row, *mv.Column)
	if !ok {
		c.send(p, events.ErrorEvent("Illegal move."))
		return
	}

	if move.GameOver {
		result := s.Game.Result()
		log.Info().
			Str("token", s.Token).
			Str("result", result.String()).
			Msg("Game over")
		c.broadcastLocked(s, events.GameEndEvent(result.String(), slot, move.Row, move.Col))
		// same token, fresh round
		s.Game.Reset()
		return
	}

	log.Debug().
		Str("token", s.Token).
		Int("player", slot).
		Int("row", move.Row).
		Int("column", move.Col).
		Msg("Move made")
	c.broadcastLocked(s, events.MoveMadeEvent(slot, move.Row, move.Col))
}

// decodeMove extracts row/column from a make_move content object. The
// returned message names whatever is missing, matching the error a client
// sees for any incomplete request ("content" when the object itself is
// absent, else the comma-joined field names).
func decodeMove(content json.RawMessage) (events.MoveContent, string) {
	var mv events.MoveContent
	if len(content) == 0 {
		return mv, "content"
	}
	if err := json.Unmarshal(content, &mv); err != nil {
		return mv, "Malformed request."
	}
	var missing []string
	if mv.Row == nil {
		missing = append(missing, "row")
	}
	if mv.Column == nil {
		missing = append(missing, "column")
	}
	if len(missing) != 0 {
		return mv, strings.Join(missing, ",")
	}
	return mv, ""
}

// stopSession is the cancellation protocol. Whichever loop's termination
// gets here first wins: it cancels every sibling loop exactly once, sends a
// single game_stopped notice to the survivor, deletes the record, and closes
// the connections. Every later call is a no-op.
func (c *Coordinator) stopSession(s *Session, slot int, cause error) {
	cancels, survivor, first := s.beginStop(slot)
	if !first {
		return
	}

	msg := "The game stopped."
	if errors.Is(cause, ErrConnClosed) {
		msg = "The other player disconnected."
		log.Info().Str("token", s.Token).Int("player", slot).Msg("Player disconnected")
	} else {
		log.Warn().Err(cause).Str("token", s.Token).Int("player", slot).Msg("Turn loop failed")
	}

	for _, cancel := range cancels {
		cancel()
	}

	if survivor != nil {
		// best effort; the session is ending regardless
		c.send(survivor, events.GameStoppedEvent(msg))
	}

	c.registry.Delete(s.Token)
	s.closeAll()
	log.Info().Str("token", s.Token).Msg("Session deleted")
}

// broadcastLocked sends ev to every bound participant. Caller holds s.mu.
func (c *Coordinator) broadcastLocked(s *Session, ev events.Event) {
	for _, p := range s.players {
		if p != nil {
			c.send(p, ev)
		}
	}
}

func (c *Coordinator) send(p Participant, ev events.Event) {
	if err := p.Send(ev); err != nil {
		log.Debug().Err(err).Str("type", ev.Type).Msg("Failed to send event")
	}
}
