package llmclient

import "fmt"

// Kind discriminates retriable vs terminal failure behavior, per the
// tagged-variant error design: callers match on Kind, not a type hierarchy.
type Kind string

const (
	KindTransport      Kind = "transport"
	KindRateLimited    Kind = "rate_limited"
	KindUpstreamHTTP   Kind = "upstream_http"
	KindInvalidOutput  Kind = "invalid_output"
	KindSchemaInvalid  Kind = "schema_invalid"
)

// Error carries the data every retry-policy branch needs.
type Error struct {
	Kind         Kind
	Status       int
	RetryAfterMs int64
	Body         string
	msg          string
}

func (e *Error) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return fmt.Sprintf("llmclient: %s (status=%d)", e.Kind, e.Status)
}

func newInvalidOutputError(reason string) *Error {
	return &Error{Kind: KindInvalidOutput, msg: fmt.Sprintf("llmclient: invalid output: %s", reason)}
}

func newSchemaInvalidError(err error) *Error {
	return &Error{Kind: KindSchemaInvalid, msg: fmt.Sprintf("llmclient: schema validation failed: %v", err)}
}

func newUpstreamError(status int, body string) *Error {
	return &Error{Kind: KindUpstreamHTTP, Status: status, Body: body, msg: fmt.Sprintf("llmclient: upstream %d: %s", status, body)}
}

func newRateLimitedError(status int) *Error {
	return &Error{Kind: KindRateLimited, Status: status, msg: fmt.Sprintf("llmclient: rate limited (status=%d)", status)}
}

func newTransportError(err error) *Error {
	return &Error{Kind: KindTransport, msg: fmt.Sprintf("llmclient: transport failure: %v", err)}
}
