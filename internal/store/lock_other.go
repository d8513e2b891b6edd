//go:build !unix && !windows

package store

import (
	"errors"
	"os"
)

var errWouldBlock = errors.New("lock would block")

// Platforms without advisory locks run without the single-writer guard.
func tryLockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
