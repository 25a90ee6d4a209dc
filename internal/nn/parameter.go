package nn

import (
	"github.com/born-ml/preactresnet/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Layers create their parameters once; the tensor handle never changes,
// only its values do (through initialisers, LoadStateDict or an external
// optimizer writing to Tensor().Data()).
//
// Example:
//
//	weight := nn.NewParameter("weight", weightTensor)
//	w := weight.Tensor()
type Parameter[B tensor.Backend] struct {
	name   string                     // Local name ("weight", "bias")
	tensor *tensor.Tensor[float32, B] // The parameter tensor
	grad   *tensor.Tensor[float32, B] // Gradient slot for external optimizers
}

// NewParameter creates a new trainable parameter around an initialised tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the local parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// Shape returns the parameter's shape.
func (p *Parameter[B]) Shape() tensor.Shape {
	return p.tensor.Shape()
}

// Grad returns the gradient tensor, or nil when none has been set.
func (p *Parameter[B]) Grad() *tensor.Tensor[float32, B] {
	return p.grad
}

// SetGrad stores a gradient computed by external training code.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[float32, B]) {
	p.grad = grad
}

// ZeroGrad clears the gradient.
func (p *Parameter[B]) ZeroGrad() {
	p.grad = nil
}

// NamedParameter pairs a parameter with its fully qualified name, e.g.
// "layer1.0.conv1.weight".
type NamedParameter[B tensor.Backend] struct {
	Name  string
	Param *Parameter[B]
}

// Qualify joins a prefix and a local name with a dot.
func Qualify(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// namedLeaf qualifies the parameters of a leaf layer.
func namedLeaf[B tensor.Backend](prefix string, params []*Parameter[B]) []NamedParameter[B] {
	named := make([]NamedParameter[B], 0, len(params))
	for _, p := range params {
		named = append(named, NamedParameter[B]{Name: Qualify(prefix, p.Name()), Param: p})
	}
	return named
}
