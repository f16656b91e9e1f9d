package connectors

import (
	"context"
	"time"
)

// Simulate - ответ для агентов в режиме песочницы: в апстрим ничего не уходит.
func Simulate(ctx context.Context, tool string, input any) (*ProxyResponse, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	body := map[string]any{
		"status":     "simulated_success",
		"details":    "Action captured in sandbox mode, no real impact made.",
		"tool":       tool,
		"input":      input,
		"simulated":  true,
		"capturedAt": time.Now().UTC().Format(time.RFC3339),
	}
	return &ProxyResponse{
		OK:          true,
		Status:      200,
		ContentType: "application/json",
		Body:        body,
	}, nil
}
