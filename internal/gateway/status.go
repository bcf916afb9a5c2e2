package gateway

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Aidin1998/instapay/pkg/errors"
)

// ParsedStatus is the decoded settlement status of one payout
type ParsedStatus struct {
	Status   string `json:"STATUS"`
	UTR      string `json:"UTRNUMBER,omitempty"`
	URN      string `json:"URN,omitempty"`
	UniqueID string `json:"UNIQUEID,omitempty"`
	Response string `json:"RESPONSE,omitempty"`
}

// DecodeResult is either Ok (Parsed set) or Malformed (Err set)
type DecodeResult struct {
	Parsed *ParsedStatus
	Err    error
}

// Ok reports whether decoding produced a status
func (r DecodeResult) Ok() bool { return r.Parsed != nil }

func malformed(format string, args ...any) DecodeResult {
	return DecodeResult{Err: errors.Parse.Explain(format, args...)}
}

// DecodeStatus decodes a status payload in two passes: the outer envelope,
// then its data field, which the gateway sends either as an object or as a
// JSON encoded string (occasionally encoded twice).
func DecodeStatus(raw []byte) DecodeResult {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 {
		return malformed("empty status payload")
	}

	// pass one: the envelope; a body that is itself a JSON string is unwrapped once
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		inner, ok := unquote(body)
		if !ok || json.Unmarshal(inner, &envelope) != nil {
			return malformed("status envelope is not a JSON object: %v", err)
		}
	}

	data, ok := envelope["data"]
	if !ok {
		// some deployments answer with the fields at the top level
		if _, has := envelope["STATUS"]; has {
			return decodeFields(envelope)
		}
		return malformed("status envelope has no data field")
	}

	// pass two: the data field
	data = bytes.TrimSpace(data)
	for i := 0; i < 2; i++ {
		inner, isString := unquote(data)
		if !isString {
			break
		}
		data = bytes.TrimSpace(inner)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return malformed("status data is not a JSON object: %v", err)
	}
	return decodeFields(fields)
}

func decodeFields(fields map[string]json.RawMessage) DecodeResult {
	status := scalar(fields["STATUS"])
	if status == "" {
		return malformed("status data carries no STATUS")
	}
	return DecodeResult{Parsed: &ParsedStatus{
		Status:   status,
		UTR:      scalar(fields["UTRNUMBER"]),
		URN:      scalar(fields["URN"]),
		UniqueID: scalar(fields["UNIQUEID"]),
		Response: scalar(fields["RESPONSE"]),
	}}
}

// unquote decodes a JSON string literal, reporting false for anything else
func unquote(raw []byte) ([]byte, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return nil, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return []byte(strings.TrimSpace(s)), true
}

// scalar renders a JSON string, number or bool as text; null and objects are empty
func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if s, ok := unquote(raw); ok {
		return string(s)
	}
	switch raw[0] {
	case '{', '[':
		return ""
	}
	return string(raw)
}
