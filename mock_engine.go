package ocrsweep

import (
	"context"
	"image"
)

const MOCK_ENGINE_RESPONSE = "mock engine decoder response"

type MockEngine struct {
}

// Recognize returns MOCK_ENGINE_RESPONSE for any page, handy for dry runs of a sweep
func (m MockEngine) Recognize(ctx context.Context, img image.Image, engineArgs EngineArgs) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return MOCK_ENGINE_RESPONSE, nil
}
