package ai

import (
	"context"
	"fmt"
)

// ResolveModel picks the model to call: the configured one when the
// provider lists it, otherwise the first listed model. When listing fails
// the configured model is used as-is.
func ResolveModel(ctx context.Context, client Client, configured string) (string, error) {
	models, err := client.ListModels(ctx)
	if err != nil {
		if configured != "" {
			return configured, nil
		}
		return "", fmt.Errorf("no model configured and listing failed: %w", err)
	}
	for _, m := range models {
		if m == configured {
			return m, nil
		}
	}
	if len(models) > 0 {
		return models[0], nil
	}
	if configured != "" {
		return configured, nil
	}
	return "", fmt.Errorf("no models available")
}
