// Package caption generates natural-language descriptions of images with a
// vision encoder and an autoregressive text decoder, each exposed as a
// Session over an inference runtime.
package caption

import (
	"errors"
	"fmt"
)

// ErrRuntimeUnavailable is returned when the binary was built without an
// inference runtime.
var ErrRuntimeUnavailable = errors.New("inference runtime not available in this build (rebuild with -tags onnx)")

// Tensor is a named, row-major tensor. Data is []float32 or []int64.
type Tensor struct {
	Name  string
	Shape []int64
	Data  any
}

// TensorInfo describes a declared session input or output. Dynamic
// dimensions are -1.
type TensorInfo struct {
	Name  string
	Shape []int64
}

// Session runs a compiled model. Outputs are returned in declaration order.
type Session interface {
	Run(inputs []Tensor) ([]Tensor, error)
	InputInfo() []TensorInfo
	OutputInfo() []TensorInfo
	Close() error
}

func numElements(shape []int64) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

func float32Data(t Tensor) ([]float32, error) {
	data, ok := t.Data.([]float32)
	if !ok {
		return nil, fmt.Errorf("tensor %q: expected float32 data, got %T", t.Name, t.Data)
	}
	if len(data) != numElements(t.Shape) {
		return nil, fmt.Errorf("tensor %q: %d values for shape %v", t.Name, len(data), t.Shape)
	}
	return data, nil
}

func ones(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
