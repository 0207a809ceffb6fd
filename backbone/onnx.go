package backbone

import (
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/petalnet/core/model"
	"github.com/YuminosukeSato/petalnet/core/tensor"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
	"github.com/YuminosukeSato/petalnet/pkg/log"
)

const (
	inputName  = "input"
	outputName = "features"
)

var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return errors.Wrap(err, "failed to initialize ONNX environment")
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	envRefs--
	if envRefs == 0 {
		if err := ort.DestroyEnvironment(); err != nil {
			log.GetLogger().Warn("failed to destroy ONNX environment", err)
		}
	}
}

// ONNX runs an exported torchvision backbone through ONNX Runtime.
// The export takes "input" [1,3,224,224] and yields "features" [1,FeatureSize].
type ONNX struct {
	arch Architecture

	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

var _ Backbone = (*ONNX)(nil)

// OpenONNX is the production Factory.
func OpenONNX(arch Architecture, opts Options) (Backbone, error) {
	if !arch.Valid() {
		return nil, errors.NewConfigError("arch", "unsupported architecture", string(arch))
	}
	path := arch.ModelPath(opts.ModelDir)
	if _, err := os.Stat(path); err != nil {
		return nil, errors.NewIOError("open backbone", path, err)
	}

	if err := acquireEnvironment(opts.SharedLibraryPath); err != nil {
		return nil, err
	}
	b, err := newONNX(arch, path, opts)
	if err != nil {
		releaseEnvironment()
		return nil, err
	}

	log.GetLoggerWithName("backbone").Info("Backbone opened",
		log.ArchKey, arch.String(),
		log.PathKey, path,
		log.DeviceKey, opts.Device(),
	)
	return b, nil
}

func newONNX(arch Architecture, path string, opts Options) (*ONNX, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, InputChannels, InputSize, InputSize))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create input tensor")
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(arch.FeatureSize())))
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Wrap(err, "failed to create output tensor")
	}

	sessionOpts, err := sessionOptions(opts)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}
	if sessionOpts != nil {
		defer sessionOpts.Destroy()
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{inputName}, []string{outputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		sessionOpts)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrapf(err, "failed to create ONNX session for %s", path)
	}

	return &ONNX{
		arch:         arch,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// sessionOptions returns nil on CPU so the runtime defaults apply.
func sessionOptions(opts Options) (*ort.SessionOptions, error) {
	if !opts.UseGPU {
		return nil, nil
	}
	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		sessionOpts.Destroy()
		return nil, errors.Wrap(err, "failed to create CUDA provider options")
	}
	defer cuda.Destroy()
	if err := sessionOpts.AppendExecutionProviderCUDA(cuda); err != nil {
		sessionOpts.Destroy()
		return nil, errors.Wrap(err, "failed to enable CUDA execution provider")
	}
	return sessionOpts, nil
}

func (b *ONNX) Architecture() Architecture { return b.arch }

func (b *ONNX) OutputSize() int { return b.arch.FeatureSize() }

// Parameters is empty: the session is inference only.
func (b *ONNX) Parameters() []*model.Parameter { return nil }

// Extract runs the session once per sample.
func (b *ONNX) Extract(batch *tensor.Tensor) (*mat.Dense, error) {
	batch = batch.Batched()
	if err := CheckInput(batch); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := batch.BatchSize()
	width := b.OutputSize()
	out := mat.NewDense(n, width, nil)
	for i := 0; i < n; i++ {
		copy(b.inputTensor.GetData(), batch.Sample(i).Data)
		if err := b.session.Run(); err != nil {
			return nil, errors.Wrap(err, "backbone inference failed")
		}
		row := out.RawRowView(i)
		for j, v := range b.outputTensor.GetData() {
			row[j] = float64(v)
		}
	}
	return out, nil
}

func (b *ONNX) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil
	}
	var firstErr error
	for _, d := range []interface{ Destroy() error }{b.session, b.inputTensor, b.outputTensor} {
		if err := d.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.session = nil
	releaseEnvironment()
	return firstErr
}

// CheckInput verifies that batch is N x 3 x 224 x 224.
func CheckInput(batch *tensor.Tensor) error {
	want := []int{batch.BatchSize(), InputChannels, InputSize, InputSize}
	if len(batch.Shape) != 4 || batch.Shape[1] != InputChannels || batch.Shape[2] != InputSize || batch.Shape[3] != InputSize {
		return errors.NewShapeMismatchError(inputName, want, batch.Shape)
	}
	return nil
}
