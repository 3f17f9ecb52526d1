package pkgmgr

import "errors"

var (
	ErrBuild  = errors.New("component build failed")
	ErrQuery  = errors.New("cache query failed")
	ErrVerify = errors.New("component verification failed")
)
