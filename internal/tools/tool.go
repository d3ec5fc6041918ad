// Package tools hosts the native tool implementations and the registry the
// agent loop dispatches through. Tools always return strings: failures are
// reported as "Error: ..." results and are never fatal to the loop.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is one callable capability exposed to the LLM.
type Tool interface {
	// Name is the unique registry key.
	Name() string

	// Description is shown to the LLM.
	Description() string

	// Parameters is the JSON Schema for the arguments object.
	Parameters() json.RawMessage

	// Execute runs the tool. The returned string is fed back to the LLM
	// verbatim; errors are encoded as "Error: ..." strings.
	Execute(ctx context.Context, args map[string]any) string
}

// decodeArgs maps a generic arguments object onto a typed struct.
func decodeArgs(args map[string]any, dst any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func errorf(format string, a ...any) string {
	return "Error: " + fmt.Sprintf(format, a...)
}
