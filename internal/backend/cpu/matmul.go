package cpu

import (
	"fmt"

	"github.com/born-ml/preactresnet/internal/tensor"
)

// MatMul multiplies two 2-D matrices: [M, K] @ [K, N] -> [M, N].
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: expected 2D operands, got %v and %v", aShape, bShape))
	}
	if aShape[1] != bShape[0] {
		panic(fmt.Sprintf("matmul: inner dimensions differ: %v @ %v", aShape, bShape))
	}
	requireSameDType("matmul", a, b)
	requireFloat("matmul", a.DType())

	M, K, N := aShape[0], aShape[1], bShape[1]
	result := cpu.alloc("matmul", tensor.Shape{M, N}, a.DType())

	switch a.DType() {
	case tensor.Float32:
		matmulKernel(cpu, view[float32](result), view[float32](a), view[float32](b), M, K, N)
	case tensor.Float64:
		matmulKernel(cpu, view[float64](result), view[float64](a), view[float64](b), M, K, N)
	}
	return result
}

// matmulKernel uses i-k-j loop order so the inner loop streams rows of b.
func matmulKernel[T float](cpu *CPUBackend, dst, a, b []T, M, K, N int) {
	cpu.forEach(M, func(i int) {
		row := dst[i*N : (i+1)*N]
		for k := 0; k < K; k++ {
			aik := a[i*K+k]
			if aik == 0 {
				continue
			}
			bRow := b[k*N : (k+1)*N]
			for j, v := range bRow {
				row[j] += aik * v
			}
		}
	})
}
