package hub

import (
	"fmt"

	"github.com/jaakkos/synapse/internal/domain"
)

// requireString extracts a non-empty string from args by key.
func requireString(args map[string]any, key string) (string, error) {
	v, _ := args[key].(string)
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, key)
	}
	return v, nil
}

// optionalString extracts a string, returning "" if absent.
func optionalString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// optionalInt extracts an int (JSON numbers arrive as float64),
// returning the fallback if absent or mistyped.
func optionalInt(args map[string]any, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return fallback
}

// optionalFloat extracts a float64, returning the fallback if absent.
func optionalFloat(args map[string]any, key string, fallback float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return fallback
}

// requireInt extracts an int from args by key.
func requireInt(args map[string]any, key string) (int, error) {
	v, exists := args[key]
	if !exists || v == nil {
		return 0, fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, key)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number, got %T", domain.ErrInvalidInput, key, v)
	}
	return int(f), nil
}

// stringSlice coerces a JSON array of strings.
func stringSlice(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// roleArg parses a role string, defaulting to "any".
func roleArg(args map[string]any, key string) domain.AgentRole {
	v, _ := args[key].(string)
	if v == "" {
		return domain.RoleAny
	}
	return domain.AgentRole(v)
}
