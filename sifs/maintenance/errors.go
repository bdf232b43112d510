package maintenance

import "errors"

// Common error types used across maintenance operations. Consistency errors
// are fatal and non-retriable: they mean the index and the operation's
// assumptions have diverged and the cycle must stop rather than attempt
// repair.
var (
	ErrNoCorrespondingPartition = errors.New("new partition has no corresponding existing partition")
	ErrStagingExhausted         = errors.New("could not allocate a staging area name")
	ErrNoInputs                 = errors.New("no input paths given")
)
