package encoder

import (
	"context"
	"fmt"
)

// Encoder turns an image into a fixed-length embedding vector. For a fixed
// underlying model the same image always yields the same vector, up to
// floating point tolerance.
type Encoder interface {
	// Name returns the name of the backing encoder, e.g. "onnx" or "remote".
	Name() string

	// Embed returns the embedding vector for the given image. The image data
	// should be the full contents of a JPEG or PNG file including the header.
	// Returns an *InputError when the image cannot be decoded or violates a
	// size constraint.
	Embed(ctx context.Context, image []byte) ([]float32, error)

	// Dim returns the length of every vector produced by this encoder.
	Dim() int

	// IsHealthy returns whether the encoder backend is usable.
	IsHealthy() bool
}

// InputError reports an image that could not be accepted: undecodable data,
// an unsupported format, or a size limit violation. It is never retried.
type InputError struct {
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bad input: %s: %v", e.Reason, e.Err)
	}
	return "bad input: " + e.Reason
}

func (e *InputError) Unwrap() error { return e.Err }
