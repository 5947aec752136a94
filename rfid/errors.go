package rfid

import (
	"errors"
	"strings"
)

// ErrorCode represents a specific class of RFID failure for programmatic handling.
type ErrorCode int

const (
	// ErrCodeTransport covers SPI bus and chip initialization failures.
	ErrCodeTransport ErrorCode = iota + 1
	// ErrCodeAuthFailed means the per-block key was rejected, typically
	// because the tag left the field mid-transaction.
	ErrCodeAuthFailed
	// ErrCodeReadFailed means a block fetch failed after successful authentication.
	ErrCodeReadFailed
	// ErrCodeWriteFailed means a block commit failed after successful authentication.
	ErrCodeWriteFailed
	// ErrCodeCapacityExceeded means an operation addressed a block past the
	// fixed usable region.
	ErrCodeCapacityExceeded
	// ErrCodeDecodeFailed means the stored string framing was malformed,
	// truncated or oversized.
	ErrCodeDecodeFailed
)

// Error provides structured error information for tag operations.
type Error struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "Read", "Flush")
	TagUID  string // Optional: UID of the tag involved
	Message string // Human-readable message
	Cause   error  // Underlying error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.TagUID != "" {
		sb.WriteString(" (tag ")
		sb.WriteString(e.TagUID)
		sb.WriteString(")")
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// NewTransportError creates an error for bus or chip initialization failures.
func NewTransportError(op string, cause error) *Error {
	return &Error{
		Code:    ErrCodeTransport,
		Op:      op,
		Message: "transport failure",
		Cause:   cause,
	}
}

// NewAuthError creates an error for per-block authentication failures.
func NewAuthError(op, tagUID string, cause error) *Error {
	return &Error{
		Code:    ErrCodeAuthFailed,
		Op:      op,
		TagUID:  tagUID,
		Message: "block authentication failed",
		Cause:   cause,
	}
}

// NewReadError creates an error for block fetch failures.
func NewReadError(op, tagUID string, cause error) *Error {
	return &Error{
		Code:    ErrCodeReadFailed,
		Op:      op,
		TagUID:  tagUID,
		Message: "block read failed",
		Cause:   cause,
	}
}

// NewWriteError creates an error for block commit failures.
func NewWriteError(op, tagUID string, cause error) *Error {
	return &Error{
		Code:    ErrCodeWriteFailed,
		Op:      op,
		TagUID:  tagUID,
		Message: "block write failed",
		Cause:   cause,
	}
}

// NewCapacityError creates an error for writes addressed past the usable region.
func NewCapacityError(op string) *Error {
	return &Error{
		Code:    ErrCodeCapacityExceeded,
		Op:      op,
		Message: "tag capacity exceeded",
	}
}

// NewDecodeError creates an error for malformed stored string framing.
func NewDecodeError(op, message string, cause error) *Error {
	return &Error{
		Code:    ErrCodeDecodeFailed,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// IsTransportError checks if an error indicates a bus or chip failure.
func IsTransportError(err error) bool {
	return hasCode(err, ErrCodeTransport)
}

// IsAuthError checks if an error indicates a rejected block authentication.
func IsAuthError(err error) bool {
	return hasCode(err, ErrCodeAuthFailed)
}

// IsCapacityError checks if an error indicates the usable region was exhausted.
func IsCapacityError(err error) bool {
	return hasCode(err, ErrCodeCapacityExceeded)
}

// IsDecodeError checks if an error indicates malformed stored framing.
func IsDecodeError(err error) bool {
	return hasCode(err, ErrCodeDecodeFailed)
}

// GetErrorCode extracts the ErrorCode from an error.
// Returns 0 if the error is not an *Error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

func hasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
