package weights

import "fmt"

// ConcatCols concatenates two same-Rows, same-DType matrices column-wise,
// producing Cols = a.Cols+b.Cols. The column-major convention this module
// uses stores each column as a contiguous run, so concatenation is a
// straight append — the operation CATMLP relies on to fuse a gate and up
// projection into one GEMM. Nibble/NF4 storage requires Rows to be even so
// column boundaries stay byte-aligned; an odd Rows returns an error rather
// than silently misaligning the second operand.
func ConcatCols(a, b Bundle) (Bundle, error) {
	if a.Weight.DType != b.Weight.DType {
		return Bundle{}, fmt.Errorf("weights: cannot concat mismatched dtypes %s/%s", a.Weight.DType, b.Weight.DType)
	}
	if a.Weight.Rows != b.Weight.Rows {
		return Bundle{}, fmt.Errorf("weights: cannot concat mismatched Rows %d/%d", a.Weight.Rows, b.Weight.Rows)
	}
	rows := a.Weight.Rows
	dtype := a.Weight.DType
	if (dtype == Nibble || dtype == NF4) && rows%2 != 0 {
		return Bundle{}, fmt.Errorf("weights: %s concat requires even Rows, got %d", dtype, rows)
	}

	out := Matrix{DType: dtype, Rows: rows, Cols: a.Weight.Cols + b.Weight.Cols}
	if dtype == Float32 {
		out.F32 = append(append([]float32{}, a.Weight.F32...), b.Weight.F32...)
	} else {
		out.Packed = append(append([]byte{}, a.Weight.Packed...), b.Weight.Packed...)
	}

	return Bundle{
		Weight: out,
		Scale:  concatVec(a.Scale, b.Scale),
		Zero:   concatVec(a.Zero, b.Zero),
		Sum:    concatVec(a.Sum, b.Sum),
	}, nil
}

func concatVec(a, b Vector) Vector {
	if a.Empty() && b.Empty() {
		return Vector{}
	}
	return Vector{Data: append(append([]float32{}, a.Data...), b.Data...)}
}
