package store

import "errors"

var (
	ErrNotFound = errors.New("object not found")
	ErrStore    = errors.New("store operation failed")
	ErrScheme   = errors.New("unsupported tier URL scheme")
)
