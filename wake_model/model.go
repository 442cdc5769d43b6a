package wake_model

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"assistant-ears/ring_buffer"
	"assistant-ears/wake_spotter"
)

const DefaultWindow = time.Second

type Config struct {
	ModelPath   string
	LibraryPath string
	// Labels name the model outputs in order. Defaults to the model file name
	// for a single output.
	Labels     []string
	SampleRate int
	// Window is how much recent audio each inference sees.
	Window time.Duration
}

// Model scores a sliding window of recent audio with an ONNX wake word
// classifier taking [1, samples] float32 input and producing one score per
// wake word. Not safe for concurrent Score calls from different streams.
type Model struct {
	mu     sync.Mutex
	window *ring_buffer.Buffer[float32]
	labels []string
	infer  func(window []float32) ([]float32, error)
	close  func() error
}

// Seams over the ONNX Runtime entry points New uses.
var (
	initRuntime    = InitRuntime
	destroyRuntime = DestroyRuntime
	inspectModel   = ort.GetInputOutputInfo
)

func New(cfg *Config) (_ *Model, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("model path is empty")
	}

	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", cfg.SampleRate)
	}

	// a runtime another model already relies on stays up
	fresh := !runtimeReady()
	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil && fresh {
			err = errors.Join(err, destroyRuntime())
		}
	}()

	inputs, outputs, err := inspectModel(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("wake_model: inspect %s: %w", cfg.ModelPath, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("wake_model: %s has no inputs or outputs", cfg.ModelPath)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("wake_model: session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("wake_model: set intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("wake_model: set inter-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("wake_model: create session: %w", err)
	}

	outShape := concreteShape(outputs[0].Dimensions)

	infer := func(window []float32) ([]float32, error) {
		in, err := ort.NewTensor(ort.NewShape(1, int64(len(window))), window)
		if err != nil {
			return nil, fmt.Errorf("input tensor: %w", err)
		}
		defer in.Destroy()

		out, err := ort.NewEmptyTensor[float32](outShape)
		if err != nil {
			return nil, fmt.Errorf("output tensor: %w", err)
		}
		defer out.Destroy()

		if err := session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
			return nil, fmt.Errorf("run: %w", err)
		}

		result := make([]float32, len(out.GetData()))
		copy(result, out.GetData())
		return result, nil
	}

	labels := cfg.Labels
	if len(labels) == 0 {
		labels = []string{strings.TrimSuffix(filepath.Base(cfg.ModelPath), filepath.Ext(cfg.ModelPath))}
	}

	return newModel(windowSamples(cfg.Window, cfg.SampleRate), labels, infer, session.Destroy), nil
}

func newModel(samples int, labels []string, infer func([]float32) ([]float32, error), closeFn func() error) *Model {
	return &Model{
		window: ring_buffer.New[float32](samples),
		labels: labels,
		infer:  infer,
		close:  closeFn,
	}
}

// Score appends samples to the window and scores it. Until a full window of
// audio has been seen it returns no scores.
func (m *Model) Score(samples []float32) ([]wake_spotter.Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.window.Add(samples)
	if !m.window.Full() {
		return nil, nil
	}

	values, err := m.infer(m.window.Read())
	if err != nil {
		return nil, fmt.Errorf("wake_model: %w", err)
	}

	scores := make([]wake_spotter.Score, 0, len(values))
	for i, v := range values {
		name := fmt.Sprintf("output_%d", i)
		if i < len(m.labels) {
			name = m.labels[i]
		}
		scores = append(scores, wake_spotter.Score{ModelName: name, Value: v})
	}

	return scores, nil
}

// Reset forgets buffered audio.
func (m *Model) Reset() {
	m.mu.Lock()
	m.window.Clear()
	m.mu.Unlock()
}

func (m *Model) Close() error {
	if m.close == nil {
		return nil
	}
	return m.close()
}

func windowSamples(window time.Duration, sampleRate int) int {
	if window <= 0 {
		window = DefaultWindow
	}
	n := int(window.Seconds() * float64(sampleRate))
	if n < 1 {
		n = 1
	}
	return n
}

// concreteShape replaces dynamic dimensions (reported as -1) with 1.
func concreteShape(dims ort.Shape) ort.Shape {
	shape := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		shape[i] = d
	}
	if len(shape) == 0 {
		shape = ort.NewShape(1)
	}
	return shape
}

var (
	_ wake_spotter.Scorer   = (*Model)(nil)
	_ wake_spotter.Resetter = (*Model)(nil)
)
