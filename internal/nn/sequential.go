package nn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/preactresnet/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input. Children are named
// by their index, so the first child's weight is exported as "0.weight".
//
// Example:
//
//	lastAct := nn.NewSequential[*cpu.CPUBackend](
//	    nn.NewBatchNorm2D(64, nn.DefaultBatchNormEpsilon, nn.DefaultBatchNormMomentum, backend),
//	    nn.NewReLU[*cpu.CPUBackend](),
//	)
//	output := lastAct.Forward(input)
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a new Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{
		modules: modules,
	}
}

// Forward applies all modules in sequence.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Parameters returns all trainable parameters from all modules in order.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// NamedParameters returns every child's parameters under "<prefix>.<index>".
func (s *Sequential[B]) NamedParameters(prefix string) []NamedParameter[B] {
	var named []NamedParameter[B]
	for i, module := range s.modules {
		named = append(named, module.NamedParameters(Qualify(prefix, strconv.Itoa(i)))...)
	}
	return named
}

// Add appends a module to the sequence.
func (s *Sequential[B]) Add(module Module[B]) {
	s.modules = append(s.modules, module)
}

// Len returns the number of modules in the sequence.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential[B]) Module(index int) Module[B] {
	if index < 0 || index >= len(s.modules) {
		panic(fmt.Sprintf("sequential: index %d out of bounds [0, %d)", index, len(s.modules)))
	}
	return s.modules[index]
}

// SetTraining propagates the mode to every child.
func (s *Sequential[B]) SetTraining(training bool) {
	for _, module := range s.modules {
		SetTraining(module, training)
	}
}

// StateDict returns every child's state prefixed with its index
// ("0.weight", "0.running_mean", ...).
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, module := range s.modules {
		MergeStateDict(stateDict, strconv.Itoa(i), module.StateDict())
	}
	return stateDict
}

// LoadStateDict loads each child from the entries under its index.
func (s *Sequential[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, module := range s.modules {
		sub := SubStateDict(stateDict, strconv.Itoa(i))
		if len(sub) == 0 && len(module.Parameters()) == 0 {
			continue
		}
		if err := module.LoadStateDict(sub); err != nil {
			return fmt.Errorf("failed to load module %d: %w", i, err)
		}
	}
	return nil
}

// String renders the children one per line.
func (s *Sequential[B]) String() string {
	var b strings.Builder
	b.WriteString("Sequential(\n")
	for i, module := range s.modules {
		fmt.Fprintf(&b, "  (%d): %v\n", i, module)
	}
	b.WriteString(")")
	return b.String()
}
