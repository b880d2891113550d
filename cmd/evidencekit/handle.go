package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/davidahmann/evidencekit/core/digest"
	"github.com/davidahmann/evidencekit/core/envelope"
	coreerrors "github.com/davidahmann/evidencekit/core/errors"
	"github.com/davidahmann/evidencekit/core/jcs"
	"github.com/davidahmann/evidencekit/core/methods"
	schemaevidence "github.com/davidahmann/evidencekit/core/schema/v1/evidence"
	"github.com/davidahmann/evidencekit/core/verify"
)

const (
	toolVerify  = "evidencekit.verify"
	toolCanon   = "evidencekit.canon"
	toolMethods = "evidencekit.methods"
)

type verifyToolInput struct {
	OutDir        string `json:"out_dir"`
	StrictMethods bool   `json:"strict_methods,omitempty"`
}

type canonToolInput struct {
	Value any `json:"value"`
}

type canonToolResult struct {
	Canonical string                `json:"canonical"`
	Digest    schemaevidence.Digest `json:"digest"`
}

// runHandle answers one enveloped tool request read from stdin. A bare JSON object
// is wrapped as the input of a fresh request for --tool.
func runHandle(arguments []string, stdin io.Reader) int {
	flagSet := pflag.NewFlagSet("handle", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	var tool string
	flagSet.StringVar(&tool, "tool", toolVerify, "tool used when stdin carries no envelope")
	if err := flagSet.Parse(arguments); err != nil {
		return writeResponse(envelope.WrapErr("", tool, coreerrors.Validation("", "%v", err)))
	}

	raw, err := io.ReadAll(stdin)
	if err != nil {
		return writeResponse(envelope.WrapErr("", tool, coreerrors.Wrap(err, coreerrors.CategoryIOFailure, coreerrors.CodeCaptureFailed, "", true)))
	}
	var decoded map[string]any
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&decoded); err != nil {
		return writeResponse(envelope.WrapErr("", tool, coreerrors.Validation("", "request must be a JSON object: %v", err)))
	}
	requestID := envelope.RequestIDOf(decoded)
	normalized, err := envelope.New(nil).NormalizeRequest(decoded, tool)
	if err != nil {
		return writeResponse(envelope.WrapErr(requestID, tool, err))
	}
	requestID = envelope.RequestIDOf(normalized)
	encoded, err := json.Marshal(normalized)
	if err != nil {
		return writeResponse(envelope.WrapErr(requestID, tool, coreerrors.Internal(err)))
	}
	req, err := envelope.ParseRequest(encoded)
	if err != nil {
		return writeResponse(envelope.WrapErr(requestID, tool, err))
	}
	result, err := dispatchTool(req)
	if err != nil {
		response := envelope.RespondErr(req, err)
		// A failed verification still carries its per-record report.
		response.Result = result
		return writeResponse(response)
	}
	return writeResponse(envelope.Respond(req, result))
}

// dispatchTool runs the requested tool. A non-nil result may accompany an error.
func dispatchTool(req envelope.Request) (any, error) {
	switch strings.TrimSpace(req.Envelope.Tool) {
	case toolVerify:
		var input verifyToolInput
		if err := decodeToolInput(req.Input, &input); err != nil {
			return nil, err
		}
		if strings.TrimSpace(input.OutDir) == "" {
			return nil, coreerrors.Validation("", "input.out_dir is required")
		}
		report, err := verify.Dir(input.OutDir, verify.Options{StrictMethods: input.StrictMethods})
		if err != nil {
			return nil, err
		}
		return report, report.Err()
	case toolCanon:
		var input canonToolInput
		if err := decodeToolInput(req.Input, &input); err != nil {
			return nil, err
		}
		canonical, err := jcs.Canonicalize(input.Value)
		if err != nil {
			return nil, coreerrors.Validation("", "canonicalize: %v", err)
		}
		return canonToolResult{Canonical: string(canonical), Digest: digest.Bytes(canonical)}, nil
	case toolMethods:
		catalog, err := methods.Default()
		if err != nil {
			return nil, coreerrors.Internal(err)
		}
		return catalog, nil
	default:
		return nil, coreerrors.Validation("", "unknown tool %q", req.Envelope.Tool)
	}
}

func decodeToolInput(input any, target any) error {
	encoded, err := json.Marshal(input)
	if err != nil {
		return coreerrors.Validation("", "encode tool input: %v", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.UseNumber()
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return coreerrors.Validation("", "decode tool input: %v", err)
	}
	return nil
}

func writeResponse(response envelope.Response) int {
	encoded, err := jcs.Canonicalize(response)
	if err != nil {
		fmt.Println(`{"envelope":{"envelope":"mcp.envelope_v0_1","ok":false,"request_id":"","tool":""},"error":{"code":"INTERNAL_ERROR","message":"failed to encode response"}}`)
		return exitInternalFailure
	}
	fmt.Println(string(encoded))
	if response.Envelope.OK {
		return exitOK
	}
	return exitCodeForError(coreerrors.Wrap(fmt.Errorf("%s", response.Error.Message), coreerrors.CategoryForCode(response.Error.Code), response.Error.Code, "", false))
}
