package nn

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/born-ml/preactresnet/internal/tensor"
)

// BatchNormBackend is implemented by backends that can normalise NCHW
// tensors per channel.
type BatchNormBackend interface {
	// BatchNorm2D computes (x - mean) / sqrt(variance + eps) * weight + bias
	// per channel.
	BatchNorm2D(x, mean, variance, weight, bias *tensor.RawTensor, eps float64) *tensor.RawTensor

	// ChannelMoments returns per-channel mean and biased variance.
	ChannelMoments(x *tensor.RawTensor) (mean, variance *tensor.RawTensor)
}

// Default BatchNorm2D hyperparameters.
const (
	DefaultBatchNormEpsilon  = 1e-5
	DefaultBatchNormMomentum = 0.1
)

// BatchNorm2D normalises each channel of an [N, C, H, W] tensor.
//
// In evaluation mode (the default) the running statistics are used and the
// forward pass only reads state, so concurrent calls are safe. In training
// mode the batch statistics are used and the running statistics are updated:
//
//	running = (1 - momentum) * running + momentum * batch
//
// with the unbiased batch variance feeding running_var.
//
// Learnable parameters: "weight" (scale, ones) and "bias" (shift, zeros).
// Buffers: "running_mean" (zeros) and "running_var" (ones).
type BatchNorm2D[B tensor.Backend] struct {
	numFeatures int
	epsilon     float64
	momentum    float64

	weight *Parameter[B] // [num_features]
	bias   *Parameter[B] // [num_features]

	mu          sync.Mutex
	runningMean *tensor.Tensor[float32, B]
	runningVar  *tensor.Tensor[float32, B]

	training atomic.Bool
	backend  B
}

// NewBatchNorm2D creates a BatchNorm2D over numFeatures channels.
//
// Panics if the backend does not implement BatchNormBackend.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, epsilon, momentum float64, backend B) *BatchNorm2D[B] {
	if numFeatures <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid num_features %d", numFeatures))
	}
	if epsilon <= 0 || momentum <= 0 || momentum > 1 {
		panic(fmt.Sprintf("batchnorm2d: invalid epsilon %g or momentum %g", epsilon, momentum))
	}
	if _, ok := any(backend).(BatchNormBackend); !ok {
		panic(fmt.Sprintf("batchnorm2d: backend %s does not implement BatchNorm2D", backend.Name()))
	}

	shape := tensor.Shape{numFeatures}
	return &BatchNorm2D[B]{
		numFeatures: numFeatures,
		epsilon:     epsilon,
		momentum:    momentum,
		weight:      NewParameter("weight", Ones(shape, backend)),
		bias:        NewParameter("bias", Zeros(shape, backend)),
		runningMean: Zeros(shape, backend),
		runningVar:  Ones(shape, backend),
		backend:     backend,
	}
}

// Forward normalises input [N, C, H, W] and returns a tensor of equal shape.
func (bn *BatchNorm2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("batchnorm2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if shape[1] != bn.numFeatures {
		panic(fmt.Sprintf("batchnorm2d: input channels %d != expected %d", shape[1], bn.numFeatures))
	}

	ops := any(bn.backend).(BatchNormBackend)

	var mean, variance *tensor.RawTensor
	if bn.training.Load() {
		mean, variance = ops.ChannelMoments(input.Raw())
		bn.updateRunningStats(mean, variance, shape[0]*shape[2]*shape[3])
	} else {
		bn.mu.Lock()
		mean, variance = bn.runningMean.Raw(), bn.runningVar.Raw()
		bn.mu.Unlock()
	}

	out := ops.BatchNorm2D(input.Raw(), mean, variance, bn.weight.Tensor().Raw(), bn.bias.Tensor().Raw(), bn.epsilon)
	return tensor.New[float32, B](out, bn.backend)
}

// updateRunningStats swaps in new running tensors so readers holding the
// previous ones are never written to.
func (bn *BatchNorm2D[B]) updateRunningStats(mean, variance *tensor.RawTensor, count int) {
	correction := 1.0
	if count > 1 {
		correction = float64(count) / float64(count-1)
	}

	bn.mu.Lock()
	defer bn.mu.Unlock()

	nextMean := bn.runningMean.Clone()
	nextVar := bn.runningVar.Clone()
	rm, rv := nextMean.Data(), nextVar.Data()
	bm, bv := mean.AsFloat32(), variance.AsFloat32()
	m := bn.momentum
	for c := range rm {
		rm[c] = float32((1-m)*float64(rm[c]) + m*float64(bm[c]))
		rv[c] = float32((1-m)*float64(rv[c]) + m*float64(bv[c])*correction)
	}
	bn.runningMean, bn.runningVar = nextMean, nextVar
}

// SetTraining selects batch statistics (true) or running statistics (false).
func (bn *BatchNorm2D[B]) SetTraining(training bool) {
	bn.training.Store(training)
}

// Training reports whether the layer is in training mode.
func (bn *BatchNorm2D[B]) Training() bool {
	return bn.training.Load()
}

// Parameters returns [weight, bias].
func (bn *BatchNorm2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.weight, bn.bias}
}

// NamedParameters returns the parameters qualified by prefix.
func (bn *BatchNorm2D[B]) NamedParameters(prefix string) []NamedParameter[B] {
	return namedLeaf(prefix, bn.Parameters())
}

// Weight returns the scale parameter.
func (bn *BatchNorm2D[B]) Weight() *Parameter[B] {
	return bn.weight
}

// Bias returns the shift parameter.
func (bn *BatchNorm2D[B]) Bias() *Parameter[B] {
	return bn.bias
}

// RunningMean returns a snapshot of the running mean.
func (bn *BatchNorm2D[B]) RunningMean() *tensor.Tensor[float32, B] {
	bn.mu.Lock()
	defer bn.mu.Unlock()
	return bn.runningMean
}

// RunningVar returns a snapshot of the running variance.
func (bn *BatchNorm2D[B]) RunningVar() *tensor.Tensor[float32, B] {
	bn.mu.Lock()
	defer bn.mu.Unlock()
	return bn.runningVar
}

// NumFeatures returns the number of channels.
func (bn *BatchNorm2D[B]) NumFeatures() int {
	return bn.numFeatures
}

// StateDict exports weight, bias and both running buffers.
func (bn *BatchNorm2D[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := parameterStateDict(bn.weight, bn.bias)
	bn.mu.Lock()
	stateDict["running_mean"] = bn.runningMean.Raw()
	stateDict["running_var"] = bn.runningVar.Raw()
	bn.mu.Unlock()
	return stateDict
}

// LoadStateDict loads weight and bias, and the running buffers when present.
// Checkpoints written without buffers keep the current running statistics.
func (bn *BatchNorm2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadParameters(stateDict, bn.weight, bn.bias); err != nil {
		return err
	}

	bn.mu.Lock()
	defer bn.mu.Unlock()
	for key, dst := range map[string]**tensor.Tensor[float32, B]{
		"running_mean": &bn.runningMean,
		"running_var":  &bn.runningVar,
	} {
		if _, ok := stateDict[key]; !ok {
			continue
		}
		next := (*dst).Clone()
		if err := loadRaw(next.Raw(), stateDict, key); err != nil {
			return err
		}
		*dst = next
	}
	return nil
}

// String returns a string representation of the layer.
func (bn *BatchNorm2D[B]) String() string {
	return fmt.Sprintf("BatchNorm2D(num_features=%d, eps=%g, momentum=%g)", bn.numFeatures, bn.epsilon, bn.momentum)
}
