package v8serialize

import "fmt"

// ParseErrorKind classifies why Parse failed.
type ParseErrorKind uint8

const (
	ParseErrBadHeader ParseErrorKind = iota
	ParseErrUnsupportedVersion
	ParseErrUnexpectedEOF
	ParseErrUnknownTag
	ParseErrInvalidReference
	ParseErrRecursionLimit
	ParseErrInvalidUTF
	ParseErrArrayLengthMismatch
	ParseErrPropertyCountMismatch
	ParseErrInvalidBigInt
	ParseErrInvalidRegExpFlags
	ParseErrInvalidDate
	ParseErrInvalidArrayBuffer
	ParseErrInvalidArrayBufferView
	ParseErrMissingTransfer
	ParseErrTrailingData
	ParseErrInvalidPropertyKey
	ParseErrInvalidErrorTag
	ParseErrSizeLimitExceeded
)

func (k ParseErrorKind) String() string {
	names := [...]string{
		"BadHeader", "UnsupportedVersion", "UnexpectedEOF", "UnknownTag",
		"InvalidReference", "RecursionLimit", "InvalidUTF", "ArrayLengthMismatch",
		"PropertyCountMismatch", "InvalidBigInt", "InvalidRegExpFlags", "InvalidDate",
		"InvalidArrayBuffer", "InvalidArrayBufferView", "MissingTransfer",
		"TrailingData", "InvalidPropertyKey", "InvalidErrorTag", "SizeLimitExceeded",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("ParseErrorKind(%d)", uint8(k))
}

// ParseError is returned by Parse/Deserialize. It never panics on
// malformed input; every failure mode surfaces as a ParseError with a
// Kind a caller can switch on, and a Pos marking the byte offset where
// the problem was detected.
type ParseError struct {
	Kind ParseErrorKind
	Pos  int
	msg  string
	err  error
}

func (e *ParseError) Error() string {
	if e.msg != "" {
		return fmt.Sprintf("v8serialize: parse error at offset %d: %s: %s", e.Pos, e.Kind, e.msg)
	}
	return fmt.Sprintf("v8serialize: parse error at offset %d: %s", e.Pos, e.Kind)
}

func (e *ParseError) Unwrap() error { return e.err }

func newParseError(kind ParseErrorKind, pos int, format string, args ...interface{}) *ParseError {
	return &ParseError{Kind: kind, Pos: pos, msg: fmt.Sprintf(format, args...)}
}

func wrapParseError(kind ParseErrorKind, pos int, err error) *ParseError {
	return &ParseError{Kind: kind, Pos: pos, err: err, msg: err.Error()}
}

// SerializationErrorKind classifies why Serialize failed.
type SerializationErrorKind uint8

const (
	SerErrUnsupportedValue SerializationErrorKind = iota
	SerErrRecursionLimit
	SerErrInvalidRegExpFlags
	SerErrInvalidDate
	SerErrInvalidBigInt
	SerErrDanglingReference
	SerErrArrayBufferTooLarge
	SerErrInvalidArrayBufferView
)

func (k SerializationErrorKind) String() string {
	names := [...]string{
		"UnsupportedValue", "RecursionLimit", "InvalidRegExpFlags", "InvalidDate",
		"InvalidBigInt", "DanglingReference", "ArrayBufferTooLarge", "InvalidArrayBufferView",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("SerializationErrorKind(%d)", uint8(k))
}

// SerializationError is returned by Serialize.
type SerializationError struct {
	Kind SerializationErrorKind
	msg  string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("v8serialize: serialization error: %s: %s", e.Kind, e.msg)
}

func newSerializationError(kind SerializationErrorKind, format string, args ...interface{}) *SerializationError {
	return &SerializationError{Kind: kind, msg: fmt.Sprintf(format, args...)}
}
