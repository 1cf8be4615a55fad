package game

import "errors"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrPuzzleNotFound      = errors.New("puzzle not found")
	ErrMediaNotFound       = errors.New("media not found")
	ErrInvalidFingerprint  = errors.New("fingerprint is required")
	ErrInvalidStage        = errors.New("invalid stage")
	ErrInvalidPhase        = errors.New("invalid trolling phase")
	ErrChallengeNotPending = errors.New("challenge has not been submitted")
)
