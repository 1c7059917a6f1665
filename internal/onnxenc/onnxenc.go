// Package onnxenc runs a local ONNX image encoder. The embedding pipeline is:
// decode → resize 224x224 → ImageNet normalize → NCHW tensor → inference →
// L2-normalized embedding vector.
package onnxenc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	xdraw "golang.org/x/image/draw"

	"github.com/cropsight/cropsight/encoder"
)

const imageSize = 224

// Standard ImageNet channel statistics, matching the encoder's training
// preprocessing.
var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Safe to call multiple
// times; only the first call has any effect.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// Encoder wraps an ONNX inference session for a vision encoder model.
type Encoder struct {
	mu         sync.Mutex // serializes Run calls
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	dim        int
}

var _ encoder.Encoder = (*Encoder)(nil)

// New loads the ONNX model and creates an inference session. The ONNX Runtime
// shared library is expected alongside the model file.
func New(modelPath string, dim int) (*Encoder, error) {
	libPath := filepath.Join(filepath.Dir(modelPath), "libonnxruntime.so")
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	// Inspect the model to discover tensor names and shapes.
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("onnx: expected a single image input, model has %d", len(inputs))
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: model has no outputs")
	}

	// Expect [batch, 3, H, W] in and [batch, dim] out.
	if n := len(inputs[0].Dimensions); n != 4 {
		return nil, fmt.Errorf("onnx: expected 4D input tensor, got %v", inputs[0].Dimensions)
	}
	odims := outputs[0].Dimensions
	if len(odims) != 2 {
		return nil, fmt.Errorf("onnx: expected 2D output tensor, got %v", odims)
	}
	if odims[1] > 0 && int(odims[1]) != dim {
		return nil, fmt.Errorf("onnx: model emits %d-dim embeddings, config says %d", odims[1], dim)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(4)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &Encoder{
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		dim:        dim,
	}, nil
}

func (e *Encoder) Name() string { return "onnx" }

func (e *Encoder) Dim() int { return e.dim }

func (e *Encoder) IsHealthy() bool { return e.session != nil }

// Close releases ONNX Runtime resources.
func (e *Encoder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

// Embed produces the L2-normalized embedding vector for the given image.
func (e *Encoder) Embed(ctx context.Context, img []byte) ([]float32, error) {
	pixels, err := preprocess(img)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inShape := ort.NewShape(1, 3, imageSize, imageSize)
	tIn, err := ort.NewTensor(inShape, pixels)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer tIn.Destroy()

	outShape := ort.NewShape(1, int64(e.dim))
	tOut, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer tOut.Destroy()

	e.mu.Lock()
	err = e.session.Run([]ort.Value{tIn}, []ort.Value{tOut})
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}

	vec := make([]float32, e.dim)
	copy(vec, tOut.GetData())
	l2normalize(vec)
	return vec, nil
}

// preprocess decodes, resizes, and normalizes the image into a flat NCHW
// float32 slice of shape [1 * 3 * imageSize * imageSize].
func preprocess(img []byte) ([]float32, error) {
	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, &encoder.InputError{Reason: "undecodable image", Err: err}
	}

	resized := image.NewRGBA(image.Rect(0, 0, imageSize, imageSize))
	xdraw.BiLinear.Scale(resized, resized.Bounds(), decoded, decoded.Bounds(), xdraw.Src, nil)

	const plane = imageSize * imageSize
	pixels := make([]float32, 3*plane)
	for y := 0; y < imageSize; y++ {
		for x := 0; x < imageSize; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			i := y*imageSize + x
			pixels[i] = (float32(r)/0xffff - imagenetMean[0]) / imagenetStd[0]
			pixels[plane+i] = (float32(g)/0xffff - imagenetMean[1]) / imagenetStd[1]
			pixels[2*plane+i] = (float32(b)/0xffff - imagenetMean[2]) / imagenetStd[2]
		}
	}
	return pixels, nil
}

func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
