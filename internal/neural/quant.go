package neural

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

var errLeakRange = errors.New("leak coefficient must be in [0, 1]")

// Precision selects the concrete representation of membrane potentials.
// It is fixed for the lifetime of a running instance.
type Precision string

const (
	PrecisionF32  Precision = "f32"
	PrecisionINT8 Precision = "int8"
)

// ParsePrecision maps a config string to a Precision.
func ParsePrecision(s string) (Precision, error) {
	switch Precision(s) {
	case PrecisionF32, "":
		return PrecisionF32, nil
	case PrecisionINT8:
		return PrecisionINT8, nil
	}
	return "", fmt.Errorf("unknown precision %q (valid: f32, int8)", s)
}

// Codec constrains stored membrane potentials to a representation. The f32
// codec is the identity; the int8 codec snaps values to an affine 8-bit grid
// and saturates at the range bounds. Out-of-range values clamp and are never
// an error.
type Codec interface {
	// Name identifies the codec for diagnostics.
	Name() string

	// Quantize snaps v to the nearest representable value.
	Quantize(v float32) float32

	// Add accumulates delta onto v with saturation at the representable
	// bounds, returning a representable value.
	Add(v, delta float32) float32

	// Step is the maximum round-trip error of Quantize (0 for f32).
	Step() float32
}

// NewCodec builds the codec for a precision. lo/hi bound the representable
// membrane-potential range and are only used by int8.
func NewCodec(p Precision, lo, hi float32) (Codec, error) {
	switch p {
	case PrecisionF32:
		return F32Codec{}, nil
	case PrecisionINT8:
		return NewInt8Codec(lo, hi)
	}
	return nil, fmt.Errorf("unknown precision %q", p)
}

// F32Codec stores potentials at full float32 precision.
type F32Codec struct{}

func (F32Codec) Name() string               { return "f32" }
func (F32Codec) Quantize(v float32) float32 { return v }
func (F32Codec) Add(v, delta float32) float32 {
	return v + delta
}
func (F32Codec) Step() float32 { return 0 }

// Int8Levels is the number of representable levels on the int8 grid,
// covering quantized codes -127..+127.
const Int8Levels = 254

// Int8Codec maps a configured membrane-potential range [Lo, Hi] affinely
// onto signed 8-bit codes in [-127, 127]. Quantization is lossy and
// monotonic with error bounded by one step; accumulation saturates at the
// range bounds.
type Int8Codec struct {
	Lo, Hi float32
	step   float32
}

// NewInt8Codec builds an int8 codec over [lo, hi].
func NewInt8Codec(lo, hi float32) (Int8Codec, error) {
	if !(hi > lo) {
		return Int8Codec{}, fmt.Errorf("int8 range invalid: [%g, %g]", lo, hi)
	}
	return Int8Codec{Lo: lo, Hi: hi, step: (hi - lo) / Int8Levels}, nil
}

func (c Int8Codec) Name() string { return "int8" }

// FromFloat quantizes v to its signed 8-bit code: normalize over the range,
// scale to the code grid, round, clamp to [-127, 127].
func (c Int8Codec) FromFloat(v float32) int8 {
	normalized := (v - c.Lo) / (c.Hi - c.Lo)
	scaled := normalized*Int8Levels - 127
	code := math32.Round(scaled)
	if code > 127 {
		code = 127
	}
	if code < -127 {
		code = -127
	}
	return int8(code)
}

// ToFloat dequantizes a signed 8-bit code back to the membrane range.
func (c Int8Codec) ToFloat(q int8) float32 {
	return (float32(q)+127)/Int8Levels*(c.Hi-c.Lo) + c.Lo
}

// SaturatingAdd adds two codes, clamping at -127 and +127.
func (c Int8Codec) SaturatingAdd(a, b int8) int8 {
	sum := int16(a) + int16(b)
	if sum > 127 {
		return 127
	}
	if sum < -127 {
		return -127
	}
	return int8(sum)
}

func (c Int8Codec) Quantize(v float32) float32 {
	return c.ToFloat(c.FromFloat(v))
}

func (c Int8Codec) Add(v, delta float32) float32 {
	return c.Quantize(v + delta)
}

func (c Int8Codec) Step() float32 { return c.step }
