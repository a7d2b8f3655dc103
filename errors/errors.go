package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoFindings indicates that a response carried no recoverable findings
	ErrNoFindings = errors.New("no findings in response")

	// ErrInsufficientEvidence indicates that retrieval produced too little
	// material for the current strategy and the caller should escalate
	ErrInsufficientEvidence = errors.New("insufficient evidence")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")
)
