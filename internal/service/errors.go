package service

import "errors"

// Policy denials. These are expected outcomes, surfaced to the client as
// specific codes — not logged as server errors.
var (
	// ErrQuizNotFound: no such quiz.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrWindowNotOpen: the quiz window has not opened yet or has closed.
	ErrWindowNotOpen = errors.New("quiz window is not open")
	// ErrAlreadyTerminal: the attempt is already submitted. Distinct from
	// ErrNotStarted so the client can show a "quiz submitted" screen
	// instead of a generic error.
	ErrAlreadyTerminal = errors.New("attempt already submitted")
	// ErrNotStarted: the student has no attempt for this quiz.
	ErrNotStarted = errors.New("attempt not started")
	// ErrWindowExpired: a USER submit arrived too long after the deadline;
	// the auto-submit path owns the attempt now.
	ErrWindowExpired = errors.New("submission window expired, auto-submit will finalize the attempt")
)
