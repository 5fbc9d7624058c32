package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrArchiveStructure indicates no source-document folder was found in
	// the archive. Fatal: the run fails before any ledger rows are created.
	ErrArchiveStructure = errors.New("archive structure invalid")

	// ErrFileParse indicates one file failed to parse. Recorded per-file;
	// the run continues.
	ErrFileParse = errors.New("file parse failed")

	// ErrStorage indicates an object-storage upload or download failure
	ErrStorage = errors.New("storage failure")

	// ErrEnqueue indicates the outbound enqueue call failed at run-creation
	// time. Fatal: the run is marked failed, never left silently queued.
	ErrEnqueue = errors.New("enqueue failed")

	// ErrRunInProgress indicates an in-flight run already owns the
	// (edition, volume) slot
	ErrRunInProgress = errors.New("ingest run already in progress")

	// ErrRunTerminal indicates the run already reached done or failed
	ErrRunTerminal = errors.New("ingest run already terminal")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")
)
