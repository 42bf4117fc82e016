package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/frontdesk/internal/backend"
	"github.com/MrWong99/frontdesk/pkg/provider/s2s"
)

// LogCallbackName is the model-facing name of the callback tool.
const LogCallbackName = "logCallback"

type callbackArgs struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Reason   string `json:"reason"`
	Priority string `json:"priority,omitempty" jsonschema:"enum=NORMAL,enum=URGENT"`
}

// LogCallback returns the tool that records a callback request in store.
// Priority defaults to NORMAL.
func LogCallback(store *backend.Store) Tool {
	return Tool{
		Definition: s2s.ToolDefinition{
			Name:        LogCallbackName,
			Description: "Log a request for a callback (Overflow agent only).",
			Parameters:  schemaFor[callbackArgs](),
		},
		Handler: func(_ context.Context, raw map[string]any) (map[string]any, error) {
			args, err := decodeArgs[callbackArgs](raw)
			if err != nil {
				return nil, fmt.Errorf("tools: %s: decode args: %w", LogCallbackName, err)
			}
			if strings.TrimSpace(args.Name) == "" || strings.TrimSpace(args.Phone) == "" || strings.TrimSpace(args.Reason) == "" {
				return nil, errors.New("tools: logCallback: name, phone and reason are required")
			}
			cb, err := store.LogCallback(backend.Callback{
				Name:     args.Name,
				Phone:    args.Phone,
				Reason:   args.Reason,
				Priority: backend.Priority(args.Priority),
			})
			if err != nil {
				return nil, fmt.Errorf("tools: %s: %w", LogCallbackName, err)
			}
			return map[string]any{"success": true, "id": cb.ID}, nil
		},
	}
}
