package resnet

import (
	"fmt"
	"strconv"

	"github.com/born-ml/preactresnet/internal/nn"
	"github.com/born-ml/preactresnet/internal/tensor"
)

// Stage is a run of blocks at one width. Only the first block changes the
// channel count or resolution.
type Stage[B tensor.Backend] struct {
	blocks []*Block[B]
}

// NewStage creates numBlocks blocks from in to out channels; the first uses
// stride and the rest stride 1.
func NewStage[B tensor.Backend](in, out, numBlocks, stride int, bnEpsilon, bnMomentum float64, backend B, opts ...nn.InitOption) *Stage[B] {
	if numBlocks < 1 {
		panic(fmt.Sprintf("stage: need at least one block, got %d", numBlocks))
	}
	blocks := make([]*Block[B], numBlocks)
	for i := range blocks {
		blocks[i] = NewBlock(in, out, stride, bnEpsilon, bnMomentum, backend, opts...)
		in, stride = out, 1
	}
	return &Stage[B]{blocks: blocks}
}

// Forward applies the blocks in order.
func (s *Stage[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	for _, b := range s.blocks {
		x = b.Forward(x)
	}
	return x
}

// Blocks returns the stage's blocks.
func (s *Stage[B]) Blocks() []*Block[B] {
	return s.blocks
}

// Len returns the number of blocks.
func (s *Stage[B]) Len() int {
	return len(s.blocks)
}

func (s *Stage[B]) children() []namedModule[B] {
	children := make([]namedModule[B], len(s.blocks))
	for i, b := range s.blocks {
		children[i] = namedModule[B]{name: strconv.Itoa(i), module: b}
	}
	return children
}

// Parameters returns the parameters of every block in order.
func (s *Stage[B]) Parameters() []*nn.Parameter[B] {
	return parametersOf(s.children())
}

// NamedParameters returns the parameters under "<prefix>.<block>".
func (s *Stage[B]) NamedParameters(prefix string) []nn.NamedParameter[B] {
	return namedParametersOf(prefix, s.children())
}

// StateDict returns every block's state keyed "<block>.<name>".
func (s *Stage[B]) StateDict() map[string]*tensor.RawTensor {
	return stateDictOf(s.children())
}

// LoadStateDict loads every block.
func (s *Stage[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadStateDictOf(stateDict, s.children())
}

// SetTraining switches every block.
func (s *Stage[B]) SetTraining(training bool) {
	for _, b := range s.blocks {
		b.SetTraining(training)
	}
}

// String summarises the stage.
func (s *Stage[B]) String() string {
	first := s.blocks[0]
	return fmt.Sprintf("Stage(%d blocks, %d -> %d, stride=%d)", len(s.blocks), first.inChannels, first.outChannels, first.stride)
}
