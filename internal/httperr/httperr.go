package httperr

import "fmt"

// Kind enumerates the taxonomy of failures the server itself can raise,
// as distinct from an application handler's own business-logic errors.
type Kind int

const (
	KindIO Kind = iota
	KindConnection
	KindHTTPParse
	KindHandler
	KindConfig
	KindResourceExhausted
	KindTimeout
)

// Error is a server-internal fault that carries enough information to
// render itself as an HTTP response.
type Error struct {
	Kind    Kind
	Context string
	Status  int // meaningful for KindHTTPParse; other kinds have a fixed status
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Context, e.Err)
	}
	return e.Context
}

func (e *Error) Unwrap() error { return e.Err }

// StatusAndBody renders the error the way it should appear on the wire:
// a status code and a short plain-text body.
func (e *Error) StatusAndBody() (int, string) {
	switch e.Kind {
	case KindHTTPParse:
		status := e.Status
		if status == 0 {
			status = 400
		}
		return status, fmt.Sprintf("Bad Request: %s", e.Context)
	case KindHandler:
		return 500, fmt.Sprintf("Internal Server Error: %s", e.Error())
	case KindResourceExhausted:
		return 503, fmt.Sprintf("Service Unavailable: %s", e.Context)
	case KindTimeout:
		return 504, fmt.Sprintf("Gateway Timeout: %s", e.Context)
	case KindConfig:
		return 500, fmt.Sprintf("Internal Server Error: bad configuration: %s", e.Context)
	case KindConnection, KindIO:
		return 500, "Internal Server Error"
	default:
		return 500, "Internal Server Error"
	}
}

func IO(context string, err error) *Error {
	return &Error{Kind: KindIO, Context: context, Err: err}
}

func Connection(fd int, context string) *Error {
	return &Error{Kind: KindConnection, Context: fmt.Sprintf("fd %d: %s", fd, context)}
}

func HTTPParse(context string, status int) *Error {
	return &Error{Kind: KindHTTPParse, Context: context, Status: status}
}

func Handler(path, method string, err error) *Error {
	return &Error{Kind: KindHandler, Context: fmt.Sprintf("%s %s", method, path), Err: err}
}

func Config(context string) *Error {
	return &Error{Kind: KindConfig, Context: context}
}

func ResourceExhausted(resource string, limit int) *Error {
	return &Error{Kind: KindResourceExhausted, Context: fmt.Sprintf("%s (limit %d)", resource, limit)}
}

func Timeout(operation string, durationMs int64) *Error {
	return &Error{Kind: KindTimeout, Context: fmt.Sprintf("%s took longer than %dms", operation, durationMs)}
}

// ErrLengthRequired is returned by the body reader when a request
// carries neither Content-Length nor chunked Transfer-Encoding.
var ErrLengthRequired = HTTPParse("neither Content-Length nor chunked Transfer-Encoding present", 411)

// ErrMalformedChunk is returned when chunked decoding encounters an
// invalid chunk-size line or missing trailing CRLF.
var ErrMalformedChunk = HTTPParse("malformed chunked body", 400)
