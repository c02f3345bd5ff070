package model

import (
	"math"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestRawBar_EmptyComplete(t *testing.T) {
	ts := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		bar          RawBar
		wantEmpty    bool
		wantComplete bool
	}{
		{"empty", RawBar{}, true, false},
		{"time only", RawBar{Time: &ts}, false, false},
		{"complete", RawBar{
			Time: &ts, Open: ptr(1.0), High: ptr(2.0), Low: ptr(0.5), Close: ptr(1.5), Volume: ptr(100.0),
		}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.bar.Empty(); got != tt.wantEmpty {
				t.Errorf("Empty() = %v, want %v", got, tt.wantEmpty)
			}
			if got := tt.bar.Complete(); got != tt.wantComplete {
				t.Errorf("Complete() = %v, want %v", got, tt.wantComplete)
			}
		})
	}
}

func TestBarRecord_ValueSet(t *testing.T) {
	var r BarRecord
	for i, f := range Fields {
		r.Set(f, float64(i+1))
	}
	for i, f := range Fields {
		if got := r.Value(f); got != float64(i+1) {
			t.Errorf("Value(%s) = %v, want %v", f, got, float64(i+1))
		}
	}
	if got := r.Value(Field(99)); !math.IsNaN(got) {
		t.Errorf("Value(unknown) = %v, want NaN", got)
	}
}

func TestRequest_EndAnchor(t *testing.T) {
	r := Request{}
	if got := r.EndAnchor(); got != "" {
		t.Errorf("EndAnchor() = %q, want empty", got)
	}

	loc := time.FixedZone("EST", -5*3600)
	r.End = time.Date(2024, 1, 2, 11, 30, 0, 0, loc)
	if got, want := r.EndAnchor(), "20240102 16:30:00 UTC"; got != want {
		t.Errorf("EndAnchor() = %q, want %q", got, want)
	}
}
