package publish

import (
	"errors"
	"fmt"
)

var (
	ErrKey     = errors.New("signing key unusable")
	ErrSign    = errors.New("signing failed")
	ErrVerify  = errors.New("signature verification failed")
	ErrPublish = errors.New("publish failed")
)

// Same identity, different content. Published artifacts are immutable:
// consumers may already trust what is stored, so a conflicting rewrite is
// refused rather than replacing it.
type IdentityConflictError struct {
	Tier string
	Key  string
}

func (e *IdentityConflictError) Error() string {
	return fmt.Sprintf("artifact identity conflict on tier %s: %s exists with different content", e.Tier, e.Key)
}
