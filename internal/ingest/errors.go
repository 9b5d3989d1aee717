package ingest

import "errors"

// Domain-specific errors for ingestion.
var (
	// ErrNoSource is returned when a dispatcher is created without a queue.
	ErrNoSource = errors.New("ingest: source is required")

	// ErrNoProcessor is returned when a dispatcher is created without a processor.
	ErrNoProcessor = errors.New("ingest: processor is required")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("ingest: dispatcher already running")

	// ErrArchiveUnavailable is returned by ArchiveProcessor when the
	// archive is not connected.
	ErrArchiveUnavailable = errors.New("ingest: archive unavailable")

	// ErrProcessorPanic wraps a recovered processor panic.
	ErrProcessorPanic = errors.New("ingest: processor panicked")
)
