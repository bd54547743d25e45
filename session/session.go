package session

import (
	"context"
	"sync"

	"github.com/duelgrid/tictactoe/game"
)

// Session is the record for one live game: the rule engine, the bound
// participants by slot, and the cancel funcs for the turn loops currently
// running against it.
//
// The single mutex serializes every engine call and every record mutation,
// so one turn loop can never observe the engine mid-mutation by its sibling.
// Receives always happen before the lock is taken.
type Session struct {
	Token string
	Game  *game.Game

	mu       sync.Mutex
	players  [2]Participant // index = slot-1
	tasks    map[int]context.CancelFunc
	stopping bool
}

func newSession(token string, creator Participant) *Session {
	s := &Session{
		Token: token,
		Game:  game.New(),
		tasks: make(map[int]context.CancelFunc),
	}
	s.players[0] = creator
	return s
}

// bindSecond claims slot 2. Exactly one of several racing joiners wins;
// losers get ErrSessionFull. A session already tearing down behaves as if it
// no longer exists.
func (s *Session) bindSecond(p Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return ErrSessionNotFound
	}
	if s.players[1] != nil {
		return ErrSessionFull
	}
	s.players[1] = p
	return nil
}

func (s *Session) participant(slot int) Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.players[slot-1]
}

// addTask records the cancel func for a starting turn loop. Returns false if
// teardown already began, in which case the loop must not run.
func (s *Session) addTask(slot int, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.tasks[slot] = cancel
	return true
}

// beginStop transitions the session into teardown on behalf of the loop for
// the given slot. Only the first caller wins; it receives the cancel funcs of
// every sibling loop still in the task set (each returned exactly once) and
// the surviving participant, if any. Later callers get first == false and
// must do nothing.
func (s *Session) beginStop(slot int) (cancels []context.CancelFunc, survivor Participant, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return nil, nil, false
	}
	s.stopping = true
	delete(s.tasks, slot)
	for _, cancel := range s.tasks {
		cancels = append(cancels, cancel)
	}
	s.tasks = make(map[int]context.CancelFunc)
	if other := s.players[2-slot]; other != nil {
		survivor = other
	}
	return cancels, survivor, true
}

// closeAll closes both participant connections. Safe to call during teardown;
// the departed side's connection is usually already gone.
func (s *Session) closeAll() {
	s.mu.Lock()
	players := s.players
	s.mu.Unlock()
	for _, p := range players {
		if p != nil {
			_ = p.Close()
		}
	}
}
