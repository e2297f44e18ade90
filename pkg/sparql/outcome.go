package sparql

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind classifies the result of one query execution.
type Kind int

const (
	KindSuccess Kind = iota
	KindHTTPStatus
	KindTransport
	KindDecode
)

// String returns the kind name used in logs and audit metadata.
func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindHTTPStatus:
		return "http_status"
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is either a decoded JSON body (KindSuccess) or a classified
// failure with a user-facing message.
type Outcome struct {
	Kind Kind
	// Body is the endpoint's JSON document, set only on success.
	Body any
	// Raw holds the response bytes Body was decoded from.
	Raw json.RawMessage
	// Message is set for every failure kind.
	Message string
	// StatusCode is the HTTP status of the response, if one arrived.
	StatusCode int
	// Cause is set for KindTransport.
	Cause TransportCause
}

// OK reports whether the outcome carries a body.
func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}

// Payload returns the wire value: the body on success, otherwise
// {"error": message}.
func (o Outcome) Payload() any {
	if o.OK() {
		return o.Body
	}
	return map[string]any{"error": o.Message}
}

// JSON returns the wire bytes. On success these are the endpoint's bytes
// unchanged; failures encode {"error": message} without HTML escaping.
func (o Outcome) JSON() ([]byte, error) {
	if o.OK() && o.Raw != nil {
		return o.Raw, nil
	}
	if o.OK() {
		return encodeJSON(o.Body)
	}
	return ErrorJSON(o.Message)
}

// ErrorJSON encodes {"error": message}.
func ErrorJSON(message string) ([]byte, error) {
	return encodeJSON(map[string]string{"error": message})
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func success(status int, body any, raw []byte) Outcome {
	return Outcome{Kind: KindSuccess, Body: body, Raw: raw, StatusCode: status}
}

func httpStatusFailure(status int, body string) Outcome {
	return Outcome{
		Kind:       KindHTTPStatus,
		StatusCode: status,
		Message:    fmt.Sprintf("HTTP error occurred: %d - %s", status, body),
	}
}

func transportFailure(endpoint string, err error) Outcome {
	return Outcome{
		Kind:    KindTransport,
		Cause:   ClassifyTransportError(err),
		Message: fmt.Sprintf("An error occurred while connecting to %s: %v", endpoint, err),
	}
}

func decodeFailure(status int, endpoint string) Outcome {
	return Outcome{
		Kind:       KindDecode,
		StatusCode: status,
		Message:    fmt.Sprintf("Invalid JSON response from %s.", endpoint),
	}
}
