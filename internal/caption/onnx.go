//go:build onnx

package caption

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

var (
	ortOnce    sync.Once
	ortInitErr error
)

func initRuntime() error {
	ortOnce.Do(func() {
		if lib := os.Getenv("ONNXRUNTIME_LIB"); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// Open loads the encoder, decoder and vocabulary described by cfg.
func Open(cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("initializing onnx runtime: %w", err)
	}
	vocab, err := LoadVocabulary(cfg.VocabPath)
	if err != nil {
		return nil, err
	}
	enc, err := openSession(cfg.EncoderPath, cfg.Threads)
	if err != nil {
		return nil, fmt.Errorf("vision encoder: %w", err)
	}
	dec, err := openSession(cfg.DecoderPath, cfg.Threads)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("text decoder: %w", err)
	}
	return newPipelineFromSessions(cfg, enc, dec, vocab, logger), nil
}

type ortSession struct {
	session *ort.DynamicAdvancedSession
	options *ort.SessionOptions
	inputs  []TensorInfo
	outputs []TensorInfo
}

func openSession(path string, threads int) (*ortSession, error) {
	inInfo, outInfo, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("reading model info %s: %w", path, err)
	}
	s := &ortSession{}
	inNames := make([]string, len(inInfo))
	for i, info := range inInfo {
		inNames[i] = info.Name
		s.inputs = append(s.inputs, TensorInfo{Name: info.Name, Shape: info.Dimensions})
	}
	outNames := make([]string, len(outInfo))
	for i, info := range outInfo {
		outNames[i] = info.Name
		s.outputs = append(s.outputs, TensorInfo{Name: info.Name, Shape: info.Dimensions})
	}

	s.options, err = ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("creating session options: %w", err)
	}
	if threads > 0 {
		if err := s.options.SetIntraOpNumThreads(threads); err != nil {
			s.options.Destroy()
			return nil, fmt.Errorf("setting thread count: %w", err)
		}
	}
	s.session, err = ort.NewDynamicAdvancedSession(path, inNames, outNames, s.options)
	if err != nil {
		s.options.Destroy()
		return nil, fmt.Errorf("creating session %s: %w", path, err)
	}
	return s, nil
}

func (s *ortSession) InputInfo() []TensorInfo  { return s.inputs }
func (s *ortSession) OutputInfo() []TensorInfo { return s.outputs }

func (s *ortSession) Run(inputs []Tensor) ([]Tensor, error) {
	if s.session == nil {
		return nil, fmt.Errorf("session is closed")
	}
	values := make([]ort.Value, len(inputs))
	defer func() {
		for _, v := range values {
			if v != nil {
				v.Destroy()
			}
		}
	}()
	for i, in := range inputs {
		v, err := toOrt(in)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in.Name, err)
		}
		values[i] = v
	}

	outputs := make([]ort.Value, len(s.outputs))
	if err := s.session.Run(values, outputs); err != nil {
		return nil, err
	}
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	result := make([]Tensor, len(outputs))
	for i, v := range outputs {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %s: unsupported tensor type %T", s.outputs[i].Name, v)
		}
		data := make([]float32, len(t.GetData()))
		copy(data, t.GetData())
		result[i] = Tensor{Name: s.outputs[i].Name, Shape: []int64(t.GetShape()), Data: data}
	}
	return result, nil
}

func (s *ortSession) Close() error {
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.options != nil {
		s.options.Destroy()
		s.options = nil
	}
	return nil
}

// toOrt copies a tensor into runtime memory. Zero-element tensors still get
// a one-element backing slice.
func toOrt(t Tensor) (ort.Value, error) {
	shape := ort.NewShape(t.Shape...)
	switch data := t.Data.(type) {
	case []float32:
		if len(data) == 0 {
			data = make([]float32, 1)
		}
		return ort.NewTensor(shape, data)
	case []int64:
		if len(data) == 0 {
			data = make([]int64, 1)
		}
		return ort.NewTensor(shape, data)
	default:
		return nil, fmt.Errorf("unsupported data type %T", t.Data)
	}
}
