package pointcloud

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// Table is the per-point attribute table. Every column holds exactly Len()
// values, index-aligned with the coordinate columns. Columns are stored as
// float64; integer labels and boolean masks are encoded as whole numbers.
type Table struct {
	n      int
	order  []string
	fields map[string][]float64
}

// NewTable creates a table from coordinate columns of equal length.
func NewTable(x, y, z []float64) (*Table, error) {
	if len(x) != len(y) || len(x) != len(z) {
		return nil, fmt.Errorf("coordinate columns differ in length: x=%d y=%d z=%d", len(x), len(y), len(z))
	}
	t := &Table{
		n:      len(x),
		fields: make(map[string][]float64, 16),
	}
	t.put(FieldX, x)
	t.put(FieldY, y)
	t.put(FieldZ, z)
	return t, nil
}

// NewTableFromPoints creates a table from a slice of vectors.
func NewTableFromPoints(points []r3.Vector) *Table {
	x := make([]float64, len(points))
	y := make([]float64, len(points))
	z := make([]float64, len(points))
	for i, p := range points {
		x[i], y[i], z[i] = p.X, p.Y, p.Z
	}
	t, _ := NewTable(x, y, z)
	return t
}

// Len returns the number of points.
func (t *Table) Len() int { return t.n }

// Names returns the column names in insertion order.
func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Has reports whether the column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.fields[name]
	return ok
}

// Field returns the column backing slice. Callers must not resize it.
func (t *Table) Field(name string) ([]float64, bool) {
	v, ok := t.fields[name]
	return v, ok
}

// Set adds or replaces a column. The slice is stored, not copied.
func (t *Table) Set(name string, values []float64) error {
	if len(values) != t.n {
		return fmt.Errorf("field %q has %d values, table has %d points", name, len(values), t.n)
	}
	t.put(name, values)
	return nil
}

func (t *Table) put(name string, values []float64) {
	if _, ok := t.fields[name]; !ok {
		t.order = append(t.order, name)
	}
	t.fields[name] = values
}

// Require checks that every named column is present. The first missing
// one is reported as a *MissingFieldError on behalf of stage.
func (t *Table) Require(stage string, names ...string) error {
	for _, name := range names {
		if !t.Has(name) {
			return &MissingFieldError{Field: name, Stage: stage, Producer: ProducerOf(name)}
		}
	}
	return nil
}

// Coords returns the coordinates as vectors.
func (t *Table) Coords() []r3.Vector {
	return t.Vectors(FieldX, FieldY, FieldZ)
}

// Vectors zips three columns into vectors. Missing columns read as zero.
func (t *Table) Vectors(fx, fy, fz string) []r3.Vector {
	xs, ys, zs := t.fields[fx], t.fields[fy], t.fields[fz]
	out := make([]r3.Vector, t.n)
	for i := range out {
		if xs != nil {
			out[i].X = xs[i]
		}
		if ys != nil {
			out[i].Y = ys[i]
		}
		if zs != nil {
			out[i].Z = zs[i]
		}
	}
	return out
}

// Ints returns a column converted to integers.
func (t *Table) Ints(name string) ([]int, bool) {
	v, ok := t.fields[name]
	if !ok {
		return nil, false
	}
	out := make([]int, len(v))
	for i, f := range v {
		out[i] = int(f)
	}
	return out, true
}

// Mask returns a column converted to booleans (non-zero is true).
func (t *Table) Mask(name string) ([]bool, bool) {
	v, ok := t.fields[name]
	if !ok {
		return nil, false
	}
	out := make([]bool, len(v))
	for i, f := range v {
		out[i] = f != 0
	}
	return out, true
}

// Filter returns a new table holding the rows where keep is true, with all
// columns in the same order.
func (t *Table) Filter(keep []bool) (*Table, error) {
	if len(keep) != t.n {
		return nil, fmt.Errorf("mask has %d values, table has %d points", len(keep), t.n)
	}
	rows := 0
	for _, k := range keep {
		if k {
			rows++
		}
	}
	out := &Table{n: rows, fields: make(map[string][]float64, len(t.order))}
	for _, name := range t.order {
		src := t.fields[name]
		dst := make([]float64, 0, rows)
		for i, k := range keep {
			if k {
				dst = append(dst, src[i])
			}
		}
		out.put(name, dst)
	}
	return out, nil
}

// IntsToFloats encodes integer labels as a column.
func IntsToFloats(v []int) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// BoolsToFloats encodes a mask as a 0/1 column.
func BoolsToFloats(v []bool) []float64 {
	out := make([]float64, len(v))
	for i, b := range v {
		if b {
			out[i] = 1
		}
	}
	return out
}
