// Package events defines the wire protocol spoken over a game connection.
//
// Every message, inbound or outbound, is an envelope with a "type" field and
// an optional "content" object. Inbound content is decoded into the typed
// Content structs below; outbound messages are built with the constructor
// funcs so each notice kind has exactly one shape.
package events

import "encoding/json"

// Inbound message types.
const (
	TypeNewGame  = "new_game"
	TypeJoinGame = "join_game"
	TypeMakeMove = "make_move"
)

// Outbound notice types.
const (
	TypeGameStarted = "game_started"
	TypeMoveMade    = "move_made"
	TypeGameEnd     = "game_end"
	TypeGameStopped = "game_stopped"
	TypeError       = "error"
)

// Envelope is the raw shape of an inbound message. Content stays undecoded
// until the type is known.
type Envelope struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// JoinContent is the content of a join_game request.
type JoinContent struct {
	Token *string `json:"token"`
}

// MoveContent is the content of a make_move request. Pointer fields so a
// missing field can be told apart from an explicit zero.
type MoveContent struct {
	Row    *int `json:"row"`
	Column *int `json:"column"`
}

// Event is a fully-formed outbound message.
type Event struct {
	Type    string `json:"type"`
	Content any    `json:"content,omitempty"`
}

type tokenContent struct {
	Token string `json:"token"`
}

type playerContent struct {
	Player int `json:"player"`
}

type moveContent struct {
	Player int `json:"player"`
	Row    int `json:"row"`
	Column int `json:"column"`
}

type endContent struct {
	Winner string `json:"winner"`
	Player int    `json:"player"`
	Row    int    `json:"row"`
	Column int    `json:"column"`
}

type msgContent struct {
	Msg string `json:"msg"`
}

// NewGameEvent echoes the freshly generated token back to the creator.
func NewGameEvent(token string) Event {
	return Event{Type: TypeNewGame, Content: tokenContent{Token: token}}
}

// GameStartedEvent tells one participant the game is on and which slot it
// plays as.
func GameStartedEvent(player int) Event {
	return Event{Type: TypeGameStarted, Content: playerContent{Player: player}}
}

// MoveMadeEvent broadcasts a non-terminal move.
func MoveMadeEvent(player, row, column int) Event {
	return Event{Type: TypeMoveMade, Content: moveContent{Player: player, Row: row, Column: column}}
}

// GameEndEvent broadcasts the move that ended the round and the outcome.
func GameEndEvent(winner string, player, row, column int) Event {
	return Event{Type: TypeGameEnd, Content: endContent{Winner: winner, Player: player, Row: row, Column: column}}
}

// GameStoppedEvent tells the surviving participant the session is over.
func GameStoppedEvent(msg string) Event {
	return Event{Type: TypeGameStopped, Content: msgContent{Msg: msg}}
}

// ErrorEvent reports a rejected request back to its sender.
func ErrorEvent(msg string) Event {
	return Event{Type: TypeError, Content: msgContent{Msg: msg}}
}
