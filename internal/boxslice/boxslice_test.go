package boxslice

import (
	"errors"
	"math"
	"testing"
	"time"
)

func frameOf(values ...float64) Frame {
	boxes := make([]Box, len(values))
	for i, v := range values {
		boxes[i] = Box{High: 10, Low: 5, Value: v}
	}
	return Frame{Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Boxes: boxes}
}

func TestFrameEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Frame
		want bool
	}{
		{"identical", frameOf(1, 1, -1), frameOf(1, 1, -1), true},
		{"one value differs", frameOf(1, 1, -1), frameOf(1, -1, -1), false},
		{"different length", frameOf(1, 1), frameOf(1, 1, -1), false},
		{"both empty", frameOf(), frameOf(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFrameEqualIgnoresRangeAndTimestamp(t *testing.T) {
	a := frameOf(2, -3)
	b := frameOf(2, -3)
	b.Timestamp = a.Timestamp.Add(time.Minute)
	b.Boxes[0].High = 99
	if !a.Equal(b) {
		t.Error("frames with equal values should be equal regardless of high/low/timestamp")
	}
}

func TestDirection(t *testing.T) {
	if (Box{Value: 0}).Direction() != Down {
		t.Error("zero value should be Down")
	}
	if (Box{Value: 0.1}).Direction() != Up {
		t.Error("positive value should be Up")
	}
	if got := frameOf(1, -5, 2).Direction(); got != Down {
		t.Errorf("dominant -5 should classify Down, got %v", got)
	}
	if got := frameOf().Direction(); got != Down {
		t.Errorf("empty frame direction = %v, want Down", got)
	}
	if Up.String() != "up" || Down.String() != "down" || Direction(7).String() != "?" {
		t.Error("unexpected Direction.String output")
	}
}

func TestRangeRatio(t *testing.T) {
	tests := []struct {
		b    Box
		want float64
	}{
		{Box{High: 10, Low: 5}, 5.0 / 15.0},
		{Box{High: 0, Low: 0}, 0},
		{Box{High: 4, Low: -4}, 1},
		{Box{High: 1, Low: -3}, 1},
	}
	for _, tt := range tests {
		if got := tt.b.RangeRatio(); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("RangeRatio(%+v) = %v, want %v", tt.b, got, tt.want)
		}
	}
}

func TestWindowClamp(t *testing.T) {
	tests := []struct {
		w     Window
		total int
		want  int
	}{
		{Window{Offset: -3, VisibleCount: 3}, 10, 0},
		{Window{Offset: 9, VisibleCount: 3}, 10, 7},
		{Window{Offset: 2, VisibleCount: 3}, 10, 2},
		{Window{Offset: 2, VisibleCount: 12}, 10, 0},
	}
	for _, tt := range tests {
		if got := tt.w.Clamp(tt.total).Offset; got != tt.want {
			t.Errorf("Clamp(%+v, %d).Offset = %d, want %d", tt.w, tt.total, got, tt.want)
		}
	}
}

func TestVisible(t *testing.T) {
	f := frameOf(1, 2, 3, 4, 5)
	boxes, base := f.Visible(Window{Offset: 1, VisibleCount: 3})
	if base != 1 || len(boxes) != 3 || boxes[0].Value != 2 {
		t.Errorf("Visible = %v base %d", boxes, base)
	}
	boxes, _ = frameOf().Visible(Window{VisibleCount: 3})
	if len(boxes) != 0 {
		t.Errorf("empty frame should yield no visible boxes, got %d", len(boxes))
	}
}

func TestSentinel(t *testing.T) {
	s := Frame{Boxes: []Box{{High: 1, Low: 0}, {High: 1, Low: 1}}}
	if !s.IsSentinel() {
		t.Error("all-high-1 frame should be a sentinel")
	}
	if (Frame{}).IsSentinel() {
		t.Error("empty frame is not a sentinel")
	}
	out := FilterSentinels([]Frame{frameOf(1), s, frameOf(-1)})
	if len(out) != 2 || out[0].Boxes[0].Value != 1 || out[1].Boxes[0].Value != -1 {
		t.Errorf("FilterSentinels kept %v", out)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(frameOf(1, -1)); err != nil {
		t.Fatalf("valid frame rejected: %v", err)
	}

	nan := frameOf(1, 2)
	nan.Boxes[1].Value = math.NaN()
	err := Validate(nan)
	if !errors.Is(err, ErrNonFinite) {
		t.Errorf("NaN value: got %v, want ErrNonFinite", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Box != 1 {
		t.Errorf("expected ValidationError for box 1, got %v", err)
	}

	inv := frameOf(1)
	inv.Boxes[0] = Box{High: 1, Low: 2}
	if err := Validate(inv); !errors.Is(err, ErrInvertedRange) {
		t.Errorf("inverted range: got %v", err)
	}
}
