package tensor

import "fmt"

// MatMulShape returns the output shape of a (m,k)x(k,n) product.
func MatMulShape(a, b []int) ([]int, error) {
	if len(a) != 2 || len(b) != 2 {
		return nil, fmt.Errorf("matmul needs rank-2 operands, got %v and %v", a, b)
	}
	if a[1] != b[0] {
		return nil, fmt.Errorf("matmul inner dims differ: %v vs %v", a, b)
	}
	return []int{a[0], b[1]}, nil
}

// Conv2DShape returns the (F,OH,OW) output shape for a (C,H,W) input and a
// (F,C,KH,KW) kernel with symmetric padding.
func Conv2DShape(in, ker []int, stride, pad int) ([]int, error) {
	if len(in) != 3 || len(ker) != 4 {
		return nil, fmt.Errorf("conv2d needs (C,H,W) input and (F,C,KH,KW) kernel, got %v and %v", in, ker)
	}
	if in[0] != ker[1] {
		return nil, fmt.Errorf("conv2d channel mismatch: input %d, kernel %d", in[0], ker[1])
	}
	if stride < 1 {
		return nil, fmt.Errorf("conv2d stride must be positive, got %d", stride)
	}
	oh := (in[1]+2*pad-ker[2])/stride + 1
	ow := (in[2]+2*pad-ker[3])/stride + 1
	if oh < 1 || ow < 1 {
		return nil, fmt.Errorf("conv2d kernel %v does not fit input %v with pad %d", ker, in, pad)
	}
	return []int{ker[0], oh, ow}, nil
}

// Pool2DShape returns the (C,OH,OW) output shape of a kxk window pool over a
// (C,H,W) input.
func Pool2DShape(in []int, k, stride int) ([]int, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("pool2d needs a (C,H,W) input, got %v", in)
	}
	if k < 1 || stride < 1 {
		return nil, fmt.Errorf("pool2d window %d and stride %d must be positive", k, stride)
	}
	oh := (in[1]-k)/stride + 1
	ow := (in[2]-k)/stride + 1
	if oh < 1 || ow < 1 {
		return nil, fmt.Errorf("pool2d window %d does not fit input %v", k, in)
	}
	return []int{in[0], oh, ow}, nil
}

// ReshapeCheck verifies that a reshape preserves the element count.
func ReshapeCheck(from, to []int) error {
	if Numel(from) != Numel(to) {
		return fmt.Errorf("reshape %v -> %v changes element count", from, to)
	}
	return nil
}
