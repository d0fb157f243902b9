package orchestrator

import "errors"

var (
	// ErrRecursionLimit means the loop hit its depth bound. Terminal for
	// the turn; the transcript up to that point is persisted intact.
	ErrRecursionLimit = errors.New("tool-call recursion limit exceeded")

	// ErrPersistence wraps a failed conversation save. The loop never
	// proceeds as though a save succeeded when it did not.
	ErrPersistence = errors.New("persisting conversation failed")

	// ErrResubmission means the chat client kept failing after the bounded
	// retry budget was spent.
	ErrResubmission = errors.New("resubmitting to chat client failed")

	// ErrConversationBusy means a turn is already running for the
	// conversation; each conversation has a single logical thread of control.
	ErrConversationBusy = errors.New("a turn is already in progress for this conversation")

	// ErrUnknownPrompt means a confirm/cancel referenced a prompt that does
	// not exist or was already resolved.
	ErrUnknownPrompt = errors.New("unknown or already resolved tool prompt")
)
