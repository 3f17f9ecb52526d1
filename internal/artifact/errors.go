package artifact

import "errors"

var (
	ErrDigest = errors.New("content digest mismatch")
	ErrRead   = errors.New("artifact read failed")
)
