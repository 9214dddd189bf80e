package store

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type returned by every IStore implementation. It wraps a
// return code, the affected collection and record (if any) and a human-readable message.
type Error struct {
	Code       RetCode // The return code
	Collection string  // The affected collection, may be empty
	ID         string  // The affected record id, may be empty
	Msg        string  // The error message
}

// Error implements the error interface.
func (e *Error) Error() string {
	target := ""
	switch {
	case e.Collection != "" && e.ID != "":
		target = fmt.Sprintf(" [%s/%s]", e.Collection, e.ID)
	case e.Collection != "":
		target = fmt.Sprintf(" [%s]", e.Collection)
	}
	return fmt.Sprintf("kiln store error (%s)%s: %s", e.Code, target, e.Msg)
}

// Is matches errors by code, so errors.Is(err, ErrNotFound) holds for every not found error.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// NewRecordError creates a new Error naming the affected collection and record.
func NewRecordError(code RetCode, collection, id, msg string) *Error {
	return &Error{
		Code:       code,
		Collection: collection,
		ID:         id,
		Msg:        msg,
	}
}

// Sentinels for errors.Is.
var (
	ErrInternal         = NewError(RetCInternalError, "internal error")
	ErrUnsupported      = NewError(RetCUnsupportedOperation, "unsupported operation")
	ErrInvalidOperation = NewError(RetCInvalidOperation, "invalid operation")
	ErrNotFound         = NewError(RetCNotFound, "not found")
	ErrWriteFailure     = NewError(RetCWriteFailure, "write failure")
	ErrSchemaDrift      = NewError(RetCSchemaDrift, "schema drift")
	ErrBackupCorruption = NewError(RetCBackupCorruption, "backup corruption")
)

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Code returns the return code of err. Nil maps to RetCSuccess, foreign errors to RetCInternalError.
func Code(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCInternalError
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying medium.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCNotFound                            // 4: The record or collection does not exist.
	RetCWriteFailure                        // 5: The underlying medium rejected a write.
	RetCSchemaDrift                         // 6: A stored record could not be decoded.
	RetCBackupCorruption                    // 7: A backup document is invalid.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCNotFound:
		return "NotFound"
	case RetCWriteFailure:
		return "WriteFailure"
	case RetCSchemaDrift:
		return "SchemaDrift"
	case RetCBackupCorruption:
		return "BackupCorruption"
	default:
		return "Unknown"
	}
}
