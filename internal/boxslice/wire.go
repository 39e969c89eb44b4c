package boxslice

import (
	"encoding/json"
	"fmt"
	"time"
)

// WireBox is the JSON shape of one box.
type WireBox struct {
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Value float64 `json:"value"`
}

// WireFrame is the JSON shape of one box slice as served by the box-slice service.
type WireFrame struct {
	Timestamp string    `json:"timestamp"`
	Boxes     []WireBox `json:"boxes"`
}

// ParseTimestamp accepts RFC 3339 with or without fractional seconds.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
	}
	return t.UTC(), nil
}

// FromWire converts a wire frame into a Frame.
func FromWire(w WireFrame) (Frame, error) {
	ts, err := ParseTimestamp(w.Timestamp)
	if err != nil {
		return Frame{}, err
	}
	boxes := make([]Box, len(w.Boxes))
	for i, b := range w.Boxes {
		boxes[i] = Box{High: b.High, Low: b.Low, Value: b.Value}
	}
	return Frame{Timestamp: ts, Boxes: boxes}, nil
}

// ToWire is the inverse of FromWire.
func ToWire(f Frame) WireFrame {
	boxes := make([]WireBox, len(f.Boxes))
	for i, b := range f.Boxes {
		boxes[i] = WireBox{High: b.High, Low: b.Low, Value: b.Value}
	}
	return WireFrame{Timestamp: f.Timestamp.UTC().Format(time.RFC3339Nano), Boxes: boxes}
}

// ConvertWire converts a batch, dropping frames with unparseable timestamps
// and sentinel placeholders. Per-frame conversion errors are returned
// alongside the frames that did convert.
func ConvertWire(batch []WireFrame) ([]Frame, []error) {
	frames := make([]Frame, 0, len(batch))
	var errs []error
	for i, w := range batch {
		f, err := FromWire(w)
		if err != nil {
			errs = append(errs, fmt.Errorf("frame %d: %w", i, err))
			continue
		}
		frames = append(frames, f)
	}
	return FilterSentinels(frames), errs
}

// DecodeBatch decodes either a JSON array of wire frames or a single wire
// frame object. Array elements that do not decode are skipped and reported in
// errs, wrapping ErrUndecodable. err is set only when data is neither.
func DecodeBatch(data []byte) (batch []WireFrame, errs []error, err error) {
	var raw []json.RawMessage
	if json.Unmarshal(data, &raw) == nil {
		batch = make([]WireFrame, 0, len(raw))
		for i, r := range raw {
			var w WireFrame
			if err := json.Unmarshal(r, &w); err != nil {
				errs = append(errs, fmt.Errorf("element %d: %w: %v", i, ErrUndecodable, err))
				continue
			}
			batch = append(batch, w)
		}
		return batch, errs, nil
	}
	var one WireFrame
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, nil, fmt.Errorf("decode box slices: %w", err)
	}
	return []WireFrame{one}, nil, nil
}
