package domain

import "errors"

var (
	ErrNotInCall         = errors.New("not in call")
	ErrAlreadyJoined     = errors.New("already joined")
	ErrNoCamera          = errors.New("no camera available")
	ErrNoMicrophone      = errors.New("no microphone available")
	ErrParticipantAbsent = errors.New("participant not found")
)
