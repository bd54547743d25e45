package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelgrid/tictactoe/events"
	"github.com/duelgrid/tictactoe/game"
)

// fakeParticipant is an in-memory Participant. Tests feed inbound messages
// through push, force receive failures through disconnect/failWith, and
// inspect everything the coordinator sent back.
type fakeParticipant struct {
	inbox chan []byte
	fail  chan error

	mu     sync.Mutex
	sent   []events.Event
	closed bool
}

func newFakeParticipant() *fakeParticipant {
	return &fakeParticipant{
		inbox: make(chan []byte, 16),
		fail:  make(chan error, 1),
	}
}

func (f *fakeParticipant) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-f.fail:
		return nil, err
	case data := <-f.inbox:
		return data, nil
	}
}

func (f *fakeParticipant) Send(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("participant closed")
	}
	f.sent = append(f.sent, v.(events.Event))
	return nil
}

func (f *fakeParticipant) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeParticipant) push(msg string) {
	f.inbox <- []byte(msg)
}

func (f *fakeParticipant) disconnect() {
	f.fail <- ErrConnClosed
}

func (f *fakeParticipant) failWith(err error) {
	f.fail <- err
}

func (f *fakeParticipant) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeParticipant) eventsOfType(typ string) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, ev := range f.sent {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// waitForEvent blocks until f has received at least n events of the given
// type and returns the n-th.
func waitForEvent(t *testing.T, f *fakeParticipant, typ string, n int) events.Event {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(f.eventsOfType(typ)) >= n
	}, 2*time.Second, 10*time.Millisecond, "no %s event (want %d)", typ, n)
	return f.eventsOfType(typ)[n-1]
}

func moveMsg(row, col int) string {
	return fmt.Sprintf(`{"type":"make_move","content":{"row":%d,"column":%d}}`, row, col)
}

// activeSession spins up a created and fully joined session.
func activeSession(t *testing.T) (*Coordinator, *Registry, string, *fakeParticipant, *fakeParticipant) {
	t.Helper()
	registry := NewRegistry()
	coordinator := NewCoordinator(registry)

	p1 := newFakeParticipant()
	token, err := coordinator.CreateSession(p1)
	require.NoError(t, err)

	p2 := newFakeParticipant()
	require.NoError(t, coordinator.JoinSession(p2, token))

	waitForEvent(t, p1, events.TypeGameStarted, 1)
	waitForEvent(t, p2, events.TypeGameStarted, 1)

	return coordinator, registry, token, p1, p2
}

func TestCreateSession(t *testing.T) {
	registry := NewRegistry()
	coordinator := NewCoordinator(registry)

	p1 := newFakeParticipant()
	token, err := coordinator.CreateSession(p1)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ev := waitForEvent(t, p1, events.TypeNewGame, 1)
	assert.Contains(t, fmt.Sprintf("%v", ev.Content), token)

	s, err := registry.Get(token)
	require.NoError(t, err)
	assert.Equal(t, token, s.Token)
}

func TestMoveWhileWaitingForOpponent(t *testing.T) {
	registry := NewRegistry()
	coordinator := NewCoordinator(registry)

	p1 := newFakeParticipant()
	_, err := coordinator.CreateSession(p1)
	require.NoError(t, err)

	p1.push(moveMsg(0, 0))

	ev := waitForEvent(t, p1, events.TypeError, 1)
	assert.Contains(t, fmt.Sprintf("%v", ev.Content), "Waiting for Player 2")
}

func TestJoinUnknownToken(t *testing.T) {
	registry := NewRegistry()
	coordinator := NewCoordinator(registry)

	p := newFakeParticipant()
	err := coordinator.JoinSession(p, "no-such-token")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	ev := waitForEvent(t, p, events.TypeError, 1)
	assert.Contains(t, fmt.Sprintf("%v", ev.Content), "Invalid token")
}

func TestJoinFullSession(t *testing.T) {
	coordinator, _, token, _, _ := activeSession(t)

	p3 := newFakeParticipant()
	err := coordinator.JoinSession(p3, token)
	assert.ErrorIs(t, err, ErrSessionFull)

	ev := waitForEvent(t, p3, events.TypeError, 1)
	assert.Contains(t, fmt.Sprintf("%v", ev.Content), "already full")
}

func TestGameStartedCarriesSlotNumbers(t *testing.T) {
	_, _, _, p1, p2 := activeSession(t)

	ev1 := waitForEvent(t, p1, events.TypeGameStarted, 1)
	ev2 := waitForEvent(t, p2, events.TypeGameStarted, 1)
	assert.Contains(t, fmt.Sprintf("%+v", ev1.Content), "Player:1")
	assert.Contains(t, fmt.Sprintf("%+v", ev2.Content), "Player:2")
}

func TestMoveBroadcastToBothPlayers(t *testing.T) {
	_, _, _, p1, p2 := activeSession(t)

	p1.push(moveMsg(0, 0))

	for _, p := range []*fakeParticipant{p1, p2} {
		ev := waitForEvent(t, p, events.TypeMoveMade, 1)
		assert.Contains(t, fmt.Sprintf("%+v", ev.Content), "Player:1")
		assert.Contains(t, fmt.Sprintf("%+v", ev.Content), "Row:0")
	}
}

func TestOutOfTurnMoveLeavesEngineUntouched(t *testing.T) {
	_, registry, token, _, p2 := activeSession(t)

	s, err := registry.Get(token)
	require.NoError(t, err)

	s.mu.Lock()
	before := *s.Game
	s.mu.Unlock()

	p2.push(moveMsg(0, 0))

	ev := waitForEvent(t, p2, events.TypeError, 1)
	assert.Contains(t, fmt.Sprintf("%v", ev.Content), "not your turn")

	s.mu.Lock()
	after := *s.Game
	s.mu.Unlock()
	assert.Equal(t, before, after)
	assert.Equal(t, [3][3]game.Mark{}, after.Board())
}

func TestOccupiedCellRejectedForSenderOnly(t *testing.T) {
	_, _, _, p1, p2 := activeSession(t)

	p1.push(moveMsg(0, 0))
	waitForEvent(t, p2, events.TypeMoveMade, 1)

	p2.push(moveMsg(0, 0))
	ev := waitForEvent(t, p2, events.TypeError, 1)
	assert.Contains(t, fmt.Sprintf("%v", ev.Content), "Illegal move")
	assert.Empty(t, p1.eventsOfType(events.TypeError))
}

func TestMalformedAndIllegalRequests(t *testing.T) {
	_, _, _, p1, _ := activeSession(t)

	tests := []struct {
		name string
		msg  string
		want string
	}{
		{"not json", `{{{`, "Malformed request."},
		{"no type", `{"content":{}}`, "Malformed request."},
		{"wrong type", `{"type":"chat"}`, "Illegal request. Please send your move."},
		{"no content", `{"type":"make_move"}`, "content"},
		{"missing row", `{"type":"make_move","content":{"column":1}}`, "row"},
		{"missing column", `{"type":"make_move","content":{"row":1}}`, "column"},
		{"missing both", `{"type":"make_move","content":{}}`, "row,column"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p1.push(tt.msg)
			ev := waitForEvent(t, p1, events.TypeError, i+1)
			assert.Contains(t, fmt.Sprintf("%v", ev.Content), tt.want)
		})
	}
}

func TestGameEndBroadcastAndReplay(t *testing.T) {
	_, registry, token, p1, p2 := activeSession(t)

	// p1 takes the top row
	p1.push(moveMsg(0, 0))
	waitForEvent(t, p2, events.TypeMoveMade, 1)
	p2.push(moveMsg(1, 0))
	waitForEvent(t, p1, events.TypeMoveMade, 2)
	p1.push(moveMsg(0, 1))
	waitForEvent(t, p2, events.TypeMoveMade, 3)
	p2.push(moveMsg(1, 1))
	waitForEvent(t, p1, events.TypeMoveMade, 4)
	p1.push(moveMsg(0, 2))

	for _, p := range []*fakeParticipant{p1, p2} {
		ev := waitForEvent(t, p, events.TypeGameEnd, 1)
		assert.Contains(t, fmt.Sprintf("%+v", ev.Content), "Player 1")
	}

	// game end keeps the session alive for another round on the same token
	s, err := registry.Get(token)
	require.NoError(t, err)
	s.mu.Lock()
	assert.Equal(t, 1, s.Game.CurrentPlayer())
	assert.Equal(t, [3][3]game.Mark{}, s.Game.Board())
	s.mu.Unlock()

	p1.push(moveMsg(2, 2))
	waitForEvent(t, p2, events.TypeMoveMade, 5)
}

func TestDisconnectTearsDownSession(t *testing.T) {
	_, registry, token, p1, p2 := activeSession(t)

	p1.disconnect()

	ev := waitForEvent(t, p2, events.TypeGameStopped, 1)
	assert.Contains(t, fmt.Sprintf("%v", ev.Content), "The other player disconnected.")

	require.Eventually(t, func() bool {
		_, err := registry.Get(token)
		return errors.Is(err, ErrSessionNotFound)
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, p2.isClosed, 2*time.Second, 10*time.Millisecond)

	// exactly one notice for one termination event
	assert.Len(t, p2.eventsOfType(events.TypeGameStopped), 1)
}

func TestAbnormalFailureTearsDownSession(t *testing.T) {
	_, registry, token, p1, p2 := activeSession(t)

	p1.failWith(errors.New("read: connection reset"))

	ev := waitForEvent(t, p2, events.TypeGameStopped, 1)
	assert.Contains(t, fmt.Sprintf("%v", ev.Content), "The game stopped.")

	require.Eventually(t, func() bool {
		_, err := registry.Get(token)
		return errors.Is(err, ErrSessionNotFound)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreatorLeavesWhileWaiting(t *testing.T) {
	registry := NewRegistry()
	coordinator := NewCoordinator(registry)

	p1 := newFakeParticipant()
	token, err := coordinator.CreateSession(p1)
	require.NoError(t, err)

	p1.disconnect()

	require.Eventually(t, func() bool {
		_, err := registry.Get(token)
		return errors.Is(err, ErrSessionNotFound)
	}, 2*time.Second, 10*time.Millisecond)

	// nobody is left to notify
	assert.Empty(t, p1.eventsOfType(events.TypeGameStopped))
}

func TestTokenUnusableAfterTeardown(t *testing.T) {
	coordinator, _, token, p1, p2 := activeSession(t)

	p1.disconnect()
	waitForEvent(t, p2, events.TypeGameStopped, 1)

	p3 := newFakeParticipant()
	err := coordinator.JoinSession(p3, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	ev := waitForEvent(t, p3, events.TypeError, 1)
	assert.Contains(t, fmt.Sprintf("%v", ev.Content), "Invalid token")
}

func TestJoinRaceExactlyOneWinner(t *testing.T) {
	registry := NewRegistry()
	coordinator := NewCoordinator(registry)

	p1 := newFakeParticipant()
	token, err := coordinator.CreateSession(p1)
	require.NoError(t, err)

	const joiners = 8
	results := make(chan error, joiners)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < joiners; i++ {
		go func() {
			start.Wait()
			results <- coordinator.JoinSession(newFakeParticipant(), token)
		}()
	}
	start.Done()

	var wins, fulls int
	for i := 0; i < joiners; i++ {
		switch err := <-results; {
		case err == nil:
			wins++
		case errors.Is(err, ErrSessionFull):
			fulls++
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}

	assert.Equal(t, 1, wins)
	assert.Equal(t, joiners-1, fulls)
}
