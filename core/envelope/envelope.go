// Package envelope frames requests, responses and errors in the mcp.envelope_v0_1
// transport shape.
package envelope

import (
	"bytes"
	"encoding/json"
	"strings"

	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/core/idgen"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
)

const ProtocolVersion = schemaevidence.EnvelopeSchema

type RequestMeta struct {
	Envelope  string `json:"envelope"`
	RequestID string `json:"request_id"`
	Tool      string `json:"tool"`
	Client    string `json:"client,omitempty"`
}

type Request struct {
	Envelope RequestMeta `json:"envelope"`
	Input    any         `json:"input"`
}

type ResponseMeta struct {
	Envelope  string `json:"envelope"`
	RequestID string `json:"request_id"`
	Tool      string `json:"tool"`
	OK        bool   `json:"ok"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Fix     string `json:"fix,omitempty"`
}

type Response struct {
	Envelope ResponseMeta `json:"envelope"`
	Result   any          `json:"result,omitempty"`
	Error    *ErrorBody   `json:"error,omitempty"`
}

// WrapResponse builds a successful response carrying result.
func WrapResponse(requestID, tool string, result any) Response {
	return Response{
		Envelope: ResponseMeta{Envelope: ProtocolVersion, RequestID: requestID, Tool: tool, OK: true},
		Result:   result,
	}
}

// WrapError builds an error response. Codes outside the transport set become
// INTERNAL_ERROR.
func WrapError(requestID, tool, code, message, fix string) Response {
	if !coreerrors.KnownCode(code) {
		code = coreerrors.CodeInternalError
	}
	return Response{
		Envelope: ResponseMeta{Envelope: ProtocolVersion, RequestID: requestID, Tool: tool, OK: false},
		Error:    &ErrorBody{Code: code, Message: message, Fix: strings.TrimSpace(fix)},
	}
}

// WrapErr maps a classified error onto an error response.
func WrapErr(requestID, tool string, err error) Response {
	if err == nil {
		return WrapError(requestID, tool, coreerrors.CodeInternalError, "unknown error", "")
	}
	return WrapError(requestID, tool, coreerrors.CodeOf(err), err.Error(), coreerrors.HintOf(err))
}

// Respond answers req, echoing its request_id and tool.
func Respond(req Request, result any) Response {
	return WrapResponse(req.Envelope.RequestID, req.Envelope.Tool, result)
}

// RespondErr builds a failure response for req.
func RespondErr(req Request, err error) Response {
	return WrapErr(req.Envelope.RequestID, req.Envelope.Tool, err)
}

// HasEnvelope reports whether raw already carries envelope metadata.
func HasEnvelope(raw map[string]any) bool {
	meta, ok := raw["envelope"].(map[string]any)
	if !ok {
		return false
	}
	requestID, ok := meta["request_id"].(string)
	return ok && strings.TrimSpace(requestID) != ""
}

// RequestIDOf returns the request_id carried by raw envelope metadata, or "" when
// there is none. It lets a response to a malformed request still echo the caller's id.
func RequestIDOf(raw map[string]any) string {
	meta, _ := raw["envelope"].(map[string]any)
	requestID, _ := meta["request_id"].(string)
	return strings.TrimSpace(requestID)
}

// ParseRequest decodes an enveloped request and checks its metadata.
func ParseRequest(data []byte) (Request, error) {
	var req Request
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&req); err != nil {
		return Request{}, coreerrors.Validation("", "parse envelope request: %v", err)
	}
	if req.Envelope.Envelope != ProtocolVersion {
		return Request{}, coreerrors.Validation("", "unsupported envelope version %q", req.Envelope.Envelope)
	}
	if strings.TrimSpace(req.Envelope.RequestID) == "" {
		return Request{}, coreerrors.Validation("", "envelope request_id is required")
	}
	if strings.TrimSpace(req.Envelope.Tool) == "" {
		return Request{}, coreerrors.Validation("", "envelope tool is required")
	}
	return req, nil
}

// Wrapper issues request identifiers from an injected randomness source.
type Wrapper struct {
	random idgen.Source
}

// New returns a Wrapper drawing request ids from random, or crypto/rand when nil.
func New(random idgen.Source) *Wrapper {
	return &Wrapper{random: idgen.Or(random)}
}

// NewRequest wraps input in a fresh request envelope.
func (w *Wrapper) NewRequest(tool string, input any, client string) (Request, error) {
	tool = strings.TrimSpace(tool)
	if tool == "" {
		return Request{}, coreerrors.Validation("", "envelope tool is required")
	}
	requestID, err := idgen.RequestID(w.random)
	if err != nil {
		return Request{}, coreerrors.Internal(err)
	}
	return Request{
		Envelope: RequestMeta{Envelope: ProtocolVersion, RequestID: requestID, Tool: tool, Client: strings.TrimSpace(client)},
		Input:    input,
	}, nil
}

// NormalizeRequest returns raw itself when it already carries envelope metadata.
// Otherwise raw becomes the input of a new envelope with a fresh request_id.
func (w *Wrapper) NormalizeRequest(raw map[string]any, tool string) (map[string]any, error) {
	if HasEnvelope(raw) {
		return raw, nil
	}
	tool = strings.TrimSpace(tool)
	if tool == "" {
		return nil, coreerrors.Validation("", "envelope tool is required")
	}
	requestID, err := idgen.RequestID(w.random)
	if err != nil {
		return nil, coreerrors.Internal(err)
	}
	var input any
	if raw != nil {
		input = raw
	}
	return map[string]any{
		"envelope": map[string]any{
			"envelope":   ProtocolVersion,
			"request_id": requestID,
			"tool":       tool,
		},
		"input": input,
	}, nil
}
