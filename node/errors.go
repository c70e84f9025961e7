package node

import (
	"errors"
	"fmt"
)

// ErrorKind is a closed set of error categories raised by the network
// subsystem. Callers that need to branch on failure mode compare against
// these with errors.Is rather than parsing message strings.
type ErrorKind int

const (
	// KindDiscoveryError covers discovery lifecycle violations (already
	// running, not running).
	KindDiscoveryError ErrorKind = iota
	// KindMdnsError covers failures from the underlying mDNS daemon,
	// including creation-retry exhaustion.
	KindMdnsError
	// KindNetworkError covers connect, read, write, flush and timeout
	// failures on any socket.
	KindNetworkError
	// KindSerializationError covers JSON encode/decode failures on any
	// wire message.
	KindSerializationError
	// KindIoError covers local filesystem operations for file transfers.
	KindIoError
	// KindFileNotFound covers a missing source file for an outbound
	// transfer.
	KindFileNotFound
	// KindTransferNotFound covers an unknown transfer-id.
	KindTransferNotFound
	// KindUserNotFound covers an unknown peer-id.
	KindUserNotFound
	// KindFileTransferError covers transfer precondition violations
	// (missing source path, missing peer IP).
	KindFileTransferError
	// KindInvalidOperation covers any other precondition violation.
	KindInvalidOperation
)

func (k ErrorKind) String() string {
	switch k {
	case KindDiscoveryError:
		return "DiscoveryError"
	case KindMdnsError:
		return "MdnsError"
	case KindNetworkError:
		return "NetworkError"
	case KindSerializationError:
		return "SerializationError"
	case KindIoError:
		return "IoError"
	case KindFileNotFound:
		return "FileNotFound"
	case KindTransferNotFound:
		return "TransferNotFound"
	case KindUserNotFound:
		return "UserNotFound"
	case KindFileTransferError:
		return "FileTransferError"
	case KindInvalidOperation:
		return "InvalidOperation"
	default:
		return "UnknownError"
	}
}

// Error is the tagged error type returned by every public operation in this
// package. It wraps an optional underlying cause with %w semantics so
// errors.Is/errors.As work against both the Kind and the cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, &Error{Kind: K}) match any *Error of that Kind,
// regardless of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func newErr(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func errDiscovery(format string, args ...interface{}) error {
	return newErr(KindDiscoveryError, nil, format, args...)
}

func errMdns(cause error, format string, args ...interface{}) error {
	return newErr(KindMdnsError, cause, format, args...)
}

func errNetwork(cause error, format string, args ...interface{}) error {
	return newErr(KindNetworkError, cause, format, args...)
}

func errSerialization(cause error, format string, args ...interface{}) error {
	return newErr(KindSerializationError, cause, format, args...)
}

func errIO(cause error, format string, args ...interface{}) error {
	return newErr(KindIoError, cause, format, args...)
}

func errFileNotFound(path string) error {
	return newErr(KindFileNotFound, nil, "file not found: %s", path)
}

func errTransferNotFound(id string) error {
	return newErr(KindTransferNotFound, nil, "transfer %s not found", id)
}

func errUserNotFound(id string) error {
	return newErr(KindUserNotFound, nil, "Peer %s not found", id)
}

func errFileTransfer(format string, args ...interface{}) error {
	return newErr(KindFileTransferError, nil, format, args...)
}

func errInvalidOperation(format string, args ...interface{}) error {
	return newErr(KindInvalidOperation, nil, format, args...)
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and false otherwise.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
