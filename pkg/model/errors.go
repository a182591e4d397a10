package model

import "github.com/m-mizutani/goerr/v2"

var (
	ErrInvalidInput          = goerr.New("invalid input")
	ErrNotFound              = goerr.New("not found")
	ErrCorruptedMemory       = goerr.New("corrupted memory blob")
	ErrBackendUnavailable    = goerr.New("backend unavailable")
	ErrTimeout               = goerr.New("operation timed out")
	ErrConsolidationConflict = goerr.New("consolidation conflict")
)
