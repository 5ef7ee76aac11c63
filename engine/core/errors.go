package core

import (
	"errors"
)

var (
	ErrNotInitialized = errors.New("system not initialized")
)
