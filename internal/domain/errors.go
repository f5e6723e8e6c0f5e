package domain

import "errors"

// Sentinel errors used throughout the dispatcher.
var (
	ErrNotFound         = errors.New("record not found")
	ErrUnknownChannel   = errors.New("unknown notification channel")
	ErrMalformedPayload = errors.New("malformed signal payload")
	ErrQueueFull        = errors.New("queue is at capacity")
	ErrShuttingDown     = errors.New("dispatcher is shutting down")
	ErrNoDispatcher     = errors.New("no dispatcher registered for category")
)
