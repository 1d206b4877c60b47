package neural

import (
	"testing"

	"github.com/chewxy/math32"
)

func TestParsePrecision(t *testing.T) {
	tests := []struct {
		in      string
		want    Precision
		wantErr bool
	}{
		{"f32", PrecisionF32, false},
		{"", PrecisionF32, false},
		{"int8", PrecisionINT8, false},
		{"fp16", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePrecision(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePrecision(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePrecision(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInt8CodecRoundTripBoundedError(t *testing.T) {
	c, err := NewInt8Codec(-100, 50)
	if err != nil {
		t.Fatalf("NewInt8Codec: %v", err)
	}

	step := c.Step()
	if math32.Abs(step-150.0/Int8Levels) > difTol {
		t.Fatalf("step = %v, want %v", step, 150.0/Int8Levels)
	}

	for v := float32(-100); v <= 50; v += 0.37 {
		got := c.Quantize(v)
		if math32.Abs(got-v) > step {
			t.Fatalf("Quantize(%v) = %v, error exceeds one step (%v)", v, got, step)
		}
	}
}

func TestInt8CodecMonotonic(t *testing.T) {
	c, err := NewInt8Codec(-100, 50)
	if err != nil {
		t.Fatalf("NewInt8Codec: %v", err)
	}

	prev := c.FromFloat(-200)
	for v := float32(-200); v <= 200; v += 0.5 {
		q := c.FromFloat(v)
		if q < prev {
			t.Fatalf("FromFloat not monotonic at %v: %d < %d", v, q, prev)
		}
		prev = q
	}
}

func TestInt8CodecClampsOutOfRange(t *testing.T) {
	c, err := NewInt8Codec(-100, 50)
	if err != nil {
		t.Fatalf("NewInt8Codec: %v", err)
	}

	// Overflow clamps; it is never an error.
	if got := c.FromFloat(1e6); got != 127 {
		t.Errorf("FromFloat(1e6) = %d, want 127", got)
	}
	if got := c.FromFloat(-1e6); got != -127 {
		t.Errorf("FromFloat(-1e6) = %d, want -127", got)
	}
	if got := c.Quantize(1e6); math32.Abs(got-50) > difTol {
		t.Errorf("Quantize(1e6) = %v, want 50", got)
	}
	if got := c.Quantize(-1e6); math32.Abs(got-(-100)) > difTol {
		t.Errorf("Quantize(-1e6) = %v, want -100", got)
	}
}

func TestInt8CodecSaturatingAdd(t *testing.T) {
	c, err := NewInt8Codec(-100, 50)
	if err != nil {
		t.Fatalf("NewInt8Codec: %v", err)
	}

	tests := []struct {
		a, b, want int8
	}{
		{100, 100, 127},
		{-100, -100, -127},
		{-128, 0, -127},
		{10, 20, 30},
		{127, 1, 127},
		{-127, -1, -127},
	}
	for _, tt := range tests {
		if got := c.SaturatingAdd(tt.a, tt.b); got != tt.want {
			t.Errorf("SaturatingAdd(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestInt8CodecAddSaturatesAtRange(t *testing.T) {
	c, err := NewInt8Codec(-100, 50)
	if err != nil {
		t.Fatalf("NewInt8Codec: %v", err)
	}

	if got := c.Add(40, 1000); math32.Abs(got-50) > difTol {
		t.Errorf("Add(40, 1000) = %v, want 50", got)
	}
	if got := c.Add(-90, -1000); math32.Abs(got-(-100)) > difTol {
		t.Errorf("Add(-90, -1000) = %v, want -100", got)
	}
}

func TestF32CodecIdentity(t *testing.T) {
	c := F32Codec{}
	if got := c.Quantize(123.456); got != 123.456 {
		t.Errorf("Quantize = %v, want 123.456", got)
	}
	if got := c.Add(1, 2); got != 3 {
		t.Errorf("Add = %v, want 3", got)
	}
	if c.Step() != 0 {
		t.Errorf("Step = %v, want 0", c.Step())
	}
}

func TestNewCodec(t *testing.T) {
	if _, err := NewCodec(PrecisionF32, 0, 0); err != nil {
		t.Errorf("f32 codec: %v", err)
	}
	if _, err := NewCodec(PrecisionINT8, -100, 50); err != nil {
		t.Errorf("int8 codec: %v", err)
	}
	if _, err := NewCodec(PrecisionINT8, 50, -100); err == nil {
		t.Error("inverted int8 range should fail")
	}
}
