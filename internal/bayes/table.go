// Package bayes holds the joint probability table a node keeps over its three
// boolean children.
package bayes

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Size is the number of joint outcomes over three boolean children.
const (
	Children = 3
	Size     = 1 << Children
)

// SumTolerance bounds how far a valid table may sum away from 1.
const SumTolerance = 1e-6

var (
	ErrInvalidIndex       = errors.New("invalid child index")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrDegenerateMarginal = errors.New("degenerate marginal")
	ErrDegenerateTable    = errors.New("degenerate table")
)

// Table is indexed by the 3-bit assignment of the children: bit 0 is child 0
// (x), bit 1 is child 1 (y), bit 2 is child 2 (z).
type Table [Size]float64

// Float64Source is any random source yielding values in [0,1).
type Float64Source interface {
	Float64() float64
}

func UniformTable() Table {
	var t Table
	for i := range t {
		t[i] = 1.0 / Size
	}
	return t
}

func NewTable(weights []float64) (Table, error) {
	if len(weights) != Size {
		return Table{}, fmt.Errorf("%w: got %d weights want %d", ErrInvalidArgument, len(weights), Size)
	}
	var t Table
	copy(t[:], weights)
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// RandomTable draws every weight from src and renormalizes. A draw summing to
// exactly zero is rejected and drawn again.
func RandomTable(src Float64Source) Table {
	for {
		var t Table
		sum := 0.0
		for i := range t {
			t[i] = src.Float64()
			sum += t[i]
		}
		if sum == 0 {
			continue
		}
		for i := range t {
			t[i] /= sum
		}
		return t
	}
}

// IndependentTable is the joint distribution of three independent children
// with the given chances of being true.
func IndependentTable(px, py, pz float64) Table {
	var t Table
	p := [Children]float64{px, py, pz}
	for i := range t {
		w := 1.0
		for child := 0; child < Children; child++ {
			if i&(1<<child) != 0 {
				w *= p[child]
			} else {
				w *= 1 - p[child]
			}
		}
		t[i] = w
	}
	return t
}

func (t Table) Sum() float64 {
	sum := 0.0
	for _, w := range t {
		sum += w
	}
	return sum
}

func (t Table) Validate() error {
	for i, w := range t {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("%w: weight[%d]=%v", ErrInvalidArgument, i, w)
		}
	}
	if sum := t.Sum(); math.Abs(sum-1) > SumTolerance {
		return fmt.Errorf("%w: weights sum to %v", ErrInvalidArgument, sum)
	}
	return nil
}

func (t Table) Marginal(child int) (float64, error) {
	if child < 0 || child >= Children {
		return 0, fmt.Errorf("%w: %d", ErrInvalidIndex, child)
	}
	bit := 1 << child
	p := 0.0
	for i, w := range t {
		if i&bit != 0 {
			p += w
		}
	}
	return p, nil
}

// SetMarginal rescales the table so child has marginal p, keeping the
// conditional distribution of the other children given child fixed.
// The current marginal must lie strictly between 0 and 1.
func (t *Table) SetMarginal(child int, p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("%w: target marginal %v", ErrInvalidArgument, p)
	}
	m, err := t.Marginal(child)
	if err != nil {
		return err
	}
	if m <= 0 || m >= 1 {
		return fmt.Errorf("%w: child %d has marginal %v", ErrDegenerateMarginal, child, m)
	}
	multTrue := p / m
	multFalse := (1 - p) / (1 - m)
	bit := 1 << child
	for i := range t {
		if i&bit != 0 {
			t[i] *= multTrue
		} else {
			t[i] *= multFalse
		}
	}
	return nil
}

func (t *Table) Normalize() error {
	sum := t.Sum()
	if !(sum > 0) || math.IsInf(sum, 0) {
		return fmt.Errorf("%w: weights sum to %v", ErrDegenerateTable, sum)
	}
	for i := range t {
		t[i] /= sum
	}
	return nil
}

// BlendToward moves each weight decay of the way toward target. The result is
// not normalized.
func (t *Table) BlendToward(target Table, decay float64) {
	for i := range t {
		t[i] = t[i]*(1-decay) + decay*target[i]
	}
}

// AverageWith replaces each weight with its mean against other. The result is
// not normalized.
func (t *Table) AverageWith(other Table) {
	for i := range t {
		t[i] = (t[i] + other[i]) / 2
	}
}

func (t Table) String() string {
	parts := make([]string, len(t))
	for i, w := range t {
		parts[i] = strconv.FormatFloat(w, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
