//go:build !onnx

package caption

import "go.uber.org/zap"

// Open always fails in builds without the onnx tag.
func Open(Config, *zap.Logger) (*Pipeline, error) {
	return nil, ErrRuntimeUnavailable
}
