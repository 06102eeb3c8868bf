package mysql

import "fmt"

// Class classifies a ServerError by its SQLSTATE prefix.
type Class int

const (
	ClassUnknown Class = iota
	ClassTransientConnection
	ClassData
	ClassIntegrityConstraint
	ClassInvalidAuthorizationSpec
	ClassTransactionRollback
	ClassSyntaxOrAccess
	ClassFeatureNotSupported
	ClassNonTransient
)

func classify(sqlstate string) Class {
	if len(sqlstate) < 2 {
		return ClassUnknown
	}
	switch sqlstate[:2] {
	case "08":
		return ClassTransientConnection
	case "22":
		return ClassData
	case "23":
		return ClassIntegrityConstraint
	case "28":
		return ClassInvalidAuthorizationSpec
	case "40":
		return ClassTransactionRollback
	case "42":
		return ClassSyntaxOrAccess
	case "0A":
		return ClassFeatureNotSupported
	default:
		return ClassNonTransient
	}
}

// Kind discriminates the top-level error taxonomy from §4.8 of the design.
type Kind int

const (
	KindProtocol Kind = iota
	KindAuth
	KindServer
	KindIO
	KindTLS
	KindTimeout
	KindEOF
	KindPacketTooBig
	KindPoolClosed
	KindAcquisitionTimeout
	KindConnectionLeak
	KindBatchUpdate
	KindResultSetClosed
	KindPublicKeyRetrievalDisabled
)

var kindNames = map[Kind]string{
	KindProtocol:                   "protocol",
	KindAuth:                       "auth",
	KindServer:                     "server",
	KindIO:                         "io",
	KindTLS:                        "tls",
	KindTimeout:                    "timeout",
	KindEOF:                        "eof",
	KindPacketTooBig:               "packet_too_big",
	KindPoolClosed:                 "pool_closed",
	KindAcquisitionTimeout:         "acquisition_timeout",
	KindConnectionLeak:             "connection_leak",
	KindBatchUpdate:                "batch_update",
	KindResultSetClosed:            "result_set_closed",
	KindPublicKeyRetrievalDisabled: "public_key_retrieval_disabled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is the single canonical exception shape: (message, sqlstate?,
// vendor_code?, sql?, detail?, hint?, params?). Every constructor in this
// package funnels into this struct.
type Error struct {
	Kind     Kind
	Message  string
	SQLState string
	Code     uint16
	SQL      string
	Detail   string
	Hint     string
	Params   []any

	// PacketTooBig fields
	Len uint32
	Max uint32

	// BatchUpdateError fields
	Counts []int64
	Cause  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServer:
		return fmt.Sprintf("mysql: server error %d (%s): %s", e.Code, e.SQLState, e.Message)
	case KindPacketTooBig:
		return fmt.Sprintf("mysql: packet too big: len=%d max=%d", e.Len, e.Max)
	case KindBatchUpdate:
		return fmt.Sprintf("mysql: batch update failed after %d statements: %v", len(e.Counts), e.Cause)
	default:
		if e.Hint != "" {
			return fmt.Sprintf("mysql: %s (%s)", e.Message, e.Hint)
		}
		return "mysql: " + e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Class returns the SQLSTATE classification for a ServerError, or
// ClassUnknown for any other kind.
func (e *Error) Class() Class {
	if e.Kind != KindServer {
		return ClassUnknown
	}
	return classify(e.SQLState)
}

func NewProtocolError(format string, args ...any) *Error {
	return &Error{Kind: KindProtocol, Message: fmt.Sprintf(format, args...)}
}

func NewAuthError(message string, cause error) *Error {
	return &Error{Kind: KindAuth, Message: message, Cause: cause}
}

func NewPublicKeyRetrievalDisabled() *Error {
	return &Error{
		Kind:    KindPublicKeyRetrievalDisabled,
		Message: "server requested full authentication but public key retrieval is disabled",
		Hint:    "set AllowPublicKeyRetrieval=true or connect over TLS",
	}
}

func NewServerError(code uint16, sqlstate, msg, sql string) *Error {
	e := &Error{Kind: KindServer, Code: code, SQLState: sqlstate, Message: msg, SQL: sql}
	if e.Class() == ClassTransactionRollback {
		e.Hint = "the transaction was rolled back by the server; retry it"
	}
	return e
}

func NewIOError(cause error) *Error {
	return &Error{Kind: KindIO, Message: cause.Error(), Cause: cause}
}

func NewTLSError(cause error) *Error {
	return &Error{Kind: KindTLS, Message: cause.Error(), Cause: cause}
}

func NewTimeout(detail string) *Error {
	return &Error{Kind: KindTimeout, Message: "timed out: " + detail}
}

func NewEOF(expected, got int) *Error {
	return &Error{Kind: KindEOF, Message: fmt.Sprintf("unexpected eof: expected %d bytes, got %d", expected, got)}
}

func NewPacketTooBig(length, max uint32) *Error {
	return &Error{Kind: KindPacketTooBig, Len: length, Max: max, Message: "packet exceeds max_allowed_packet"}
}

func NewPoolClosed() *Error {
	return &Error{Kind: KindPoolClosed, Message: "pool is closed"}
}

func NewConnectionAcquisitionTimeout(waited string) *Error {
	return &Error{Kind: KindAcquisitionTimeout, Message: "timed out acquiring a connection after " + waited}
}

func NewConnectionLeak(heldFor string, context string) *Error {
	return &Error{Kind: KindConnectionLeak, Message: "connection held for " + heldFor + " past leak_detection_threshold", Detail: context}
}

func NewBatchUpdateError(counts []int64, cause error) *Error {
	return &Error{Kind: KindBatchUpdate, Counts: counts, Cause: cause, Message: "batch update failed"}
}

func NewResultSetClosed() *Error {
	return &Error{Kind: KindResultSetClosed, Message: "result set is closed"}
}
