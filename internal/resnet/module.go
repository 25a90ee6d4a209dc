package resnet

import (
	"fmt"

	"github.com/born-ml/preactresnet/internal/nn"
	"github.com/born-ml/preactresnet/internal/tensor"
)

// namedModule is a child layer together with its state dict name.
type namedModule[B tensor.Backend] struct {
	name   string
	module nn.Module[B]
}

func parametersOf[B tensor.Backend](children []namedModule[B]) []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, c := range children {
		params = append(params, c.module.Parameters()...)
	}
	return params
}

func namedParametersOf[B tensor.Backend](prefix string, children []namedModule[B]) []nn.NamedParameter[B] {
	var named []nn.NamedParameter[B]
	for _, c := range children {
		named = append(named, c.module.NamedParameters(nn.Qualify(prefix, c.name))...)
	}
	return named
}

func stateDictOf[B tensor.Backend](children []namedModule[B]) map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for _, c := range children {
		nn.MergeStateDict(stateDict, c.name, c.module.StateDict())
	}
	return stateDict
}

func loadStateDictOf[B tensor.Backend](stateDict map[string]*tensor.RawTensor, children []namedModule[B]) error {
	for _, c := range children {
		if err := c.module.LoadStateDict(nn.SubStateDict(stateDict, c.name)); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}
