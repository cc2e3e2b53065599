package types

import "errors"

// Error taxonomy shared by the engine, the ledger and the patch engine.
// Callers match with errors.Is; concrete errors wrap one of these.
var (
	ErrNotFound       = errors.New("not found")
	ErrIO             = errors.New("i/o error")
	ErrPatch          = errors.New("patch error")
	ErrCannotRollback = errors.New("application cannot be rolled back")
)
