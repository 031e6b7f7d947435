// internal/types/models_test.go
package types

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		in       any
		want     any
		dataType DataType
	}{
		{"john", "john", DataTypeString},
		{true, true, DataTypeBoolean},
		{uint64(42), int64(42), DataTypeInteger},
		{int64(-7), int64(-7), DataTypeInteger},
		{float32(1.5), float64(1.5), DataTypeFloat},
		{2.25, 2.25, DataTypeFloat},
	}
	for _, tt := range tests {
		got, dt, err := NormalizeValue(tt.in)
		if err != nil {
			t.Fatalf("NormalizeValue(%v): %v", tt.in, err)
		}
		if got != tt.want || dt != tt.dataType {
			t.Errorf("NormalizeValue(%v) = %v (%s), want %v (%s)", tt.in, got, dt, tt.want, tt.dataType)
		}
	}
}

func TestNormalizeValueRejects(t *testing.T) {
	for _, v := range []any{nil, []any{1}, map[any]any{}, uint64(1 << 63), math.NaN(), math.Inf(1), float32(math.Inf(-1))} {
		if _, _, err := NormalizeValue(v); !errors.Is(err, ErrUnsupportedValue) {
			t.Errorf("NormalizeValue(%v): expected ErrUnsupportedValue, got %v", v, err)
		}
	}
}

func TestCoerce(t *testing.T) {
	v, err := Coerce(int64(3), DataTypeInteger, DataTypeFloat)
	if err != nil {
		t.Fatal(err)
	}
	if v != float64(3) {
		t.Errorf("expected 3.0, got %v", v)
	}

	if _, err := Coerce("x", DataTypeString, DataTypeInteger); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestEventSet(t *testing.T) {
	e := NewEvent(1000, 42, 0)
	if e.Data != nil {
		t.Fatal("expected nil data on a new event")
	}
	e.Set(1, "john")
	if e.Data[1] != "john" {
		t.Errorf("expected data[1] = john, got %v", e.Data[1])
	}
}

func TestShiftTime(t *testing.T) {
	ts := time.Date(2000, 1, 1, 0, 0, 0, 123000, time.UTC)
	shifted := ShiftTime(ts)
	if shifted&0xFFFFF != 123 {
		t.Errorf("expected 123 microseconds in low bits, got %d", shifted&0xFFFFF)
	}
	if got := UnshiftTime(shifted); !got.Equal(ts) {
		t.Errorf("expected %v, got %v", ts, got)
	}
}
