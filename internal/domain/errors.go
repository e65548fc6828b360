package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no room is stored under a code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrPlayerNotFound is returned when a player identity is unknown.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrRoomNotJoinable is returned when joining a room that already started.
	ErrRoomNotJoinable = errors.New("quiz has already started")
	// ErrAlreadyJoined rejects a second join of the same identity to the same room.
	ErrAlreadyJoined = errors.New("player already joined this room")
	// ErrAlreadyAnswered rejects a second submission for one question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrQuestionMismatch indicates the question belongs to another room.
	ErrQuestionMismatch = errors.New("question does not belong to the player's room")
	// ErrInvalidState is returned when a transition is not allowed from the room's status.
	ErrInvalidState = errors.New("operation not allowed in the current room state")
	// ErrNotHost rejects host-only operations from other identities.
	ErrNotHost = errors.New("only the host can perform this action")
	// ErrCodeExhausted means no free room code was found within the attempt budget.
	ErrCodeExhausted = errors.New("could not allocate room code")
	// ErrRoomCodeTaken is returned by stores when a code is already in use.
	ErrRoomCodeTaken = errors.New("room code already in use")
	// ErrPlayerExists is returned by stores when an identity is already a player.
	ErrPlayerExists = errors.New("player already exists")
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
)
