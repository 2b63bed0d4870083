package utils

import "errors"

var (
	ErrorRecordNotFound = errors.New("record not found")

	// ErrorInsufficientStock aborts the whole checkout transaction when the
	// authoritative stock re-check fails for any line.
	ErrorInsufficientStock = errors.New("insufficient stock")
)
