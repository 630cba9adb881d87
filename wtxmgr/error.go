// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"errors"
	"fmt"
)

// ErrTxCancelled marks a send outcome reported as explicitly cancelled by
// the user rather than failed by the network.
var ErrTxCancelled = errors.New("transaction cancelled")

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrData indicates malformed or corrupt serialized data.
	ErrData ErrorCode = iota

	// ErrUnknownTransaction indicates a TransactionID outside the
	// transaction table.
	ErrUnknownTransaction

	// ErrUnknownTokenTransaction indicates a TokenTxID outside the token
	// transaction table.
	ErrUnknownTokenTransaction

	// ErrOutputClaimed indicates an attempt to register a pending
	// transaction claiming an output already claimed by another live
	// pending transaction.
	ErrOutputClaimed
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrData:                    "ErrData",
	ErrUnknownTransaction:      "ErrUnknownTransaction",
	ErrUnknownTokenTransaction: "ErrUnknownTokenTransaction",
	ErrOutputClaimed:           "ErrOutputClaimed",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can happen during cache
// operation.
type Error struct {
	Code        ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e Error) Unwrap() error {
	return e.Err
}

// storeError creates an Error given a set of arguments.
func storeError(c ErrorCode, desc string, err error) Error {
	return Error{Code: c, Description: desc, Err: err}
}

// IsError returns whether err is an Error with a matching error code.
func IsError(err error, code ErrorCode) bool {
	var e Error
	return errors.As(err, &e) && e.Code == code
}
