package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMalformedResponse means the model reply had no parseable, valid JSON object.
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrImageGenerationFailed means the model reply contained no image.
	ErrImageGenerationFailed = errors.New("image generation failed")
	// ErrTimeout means the call did not finish before its deadline.
	ErrTimeout = errors.New("model call timed out")
	// ErrEmptyName means a listing was requested without a product name.
	ErrEmptyName = errors.New("product name is required")
)

// classifyCallError maps deadline expiry to ErrTimeout. Cancellation by the
// caller is returned unchanged.
func classifyCallError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
