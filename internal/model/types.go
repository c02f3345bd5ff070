package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Request Types
// -----------------------------------------------------------------------------

// Request is one outstanding historical-data query.
type Request struct {
	ID          int64     // Correlation id from the Sequencer
	Instrument  string    // Instrument symbol (e.g., "AAPL")
	BarSize     string    // Bucket width (e.g., "1 hour", "5 mins")
	Duration    string    // Window length ending at End (e.g., "2 D")
	End         time.Time // End anchor; zero means "now" on the peer
	RegularOnly bool      // Regular trading hours only
}

// EndAnchor formats the end anchor the way the peer expects it.
// A zero End yields an empty string, which the peer reads as "now".
func (r Request) EndAnchor() string {
	if r.End.IsZero() {
		return ""
	}
	return r.End.UTC().Format("20060102 15:04:05") + " UTC"
}

// -----------------------------------------------------------------------------
// Bar Types
// -----------------------------------------------------------------------------

// RawBar is a bar as delivered by the peer. Any field may be absent.
type RawBar struct {
	Time   *time.Time
	Open   *float64
	High   *float64
	Low    *float64
	Close  *float64
	Volume *float64
}

// Empty reports whether every field of the bar is absent.
func (b RawBar) Empty() bool {
	return b.Time == nil && b.Open == nil && b.High == nil &&
		b.Low == nil && b.Close == nil && b.Volume == nil
}

// Complete reports whether every field of the bar is present.
func (b RawBar) Complete() bool {
	return b.Time != nil && b.Open != nil && b.High != nil &&
		b.Low != nil && b.Close != nil && b.Volume != nil
}

// BarRecord is one verified OHLCV observation.
type BarRecord struct {
	Instrument       string
	Time             time.Time
	Open             float64
	High             float64
	Low              float64
	Close            float64
	Volume           float64
	PartiallyMissing bool // true if any field was synthesized or forward-filled
}

// Field identifies a non-timestamp column of a BarRecord.
type Field int

const (
	FieldOpen Field = iota
	FieldHigh
	FieldLow
	FieldClose
	FieldVolume
)

// Fields lists the non-timestamp columns in storage order.
var Fields = []Field{FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume}

func (f Field) String() string {
	switch f {
	case FieldOpen:
		return "open"
	case FieldHigh:
		return "high"
	case FieldLow:
		return "low"
	case FieldClose:
		return "close"
	case FieldVolume:
		return "volume"
	}
	return "unknown"
}

// Value returns the column value of the record.
func (r BarRecord) Value(f Field) float64 {
	switch f {
	case FieldOpen:
		return r.Open
	case FieldHigh:
		return r.High
	case FieldLow:
		return r.Low
	case FieldClose:
		return r.Close
	case FieldVolume:
		return r.Volume
	}
	return math.NaN()
}

// Set assigns the column value of the record.
func (r *BarRecord) Set(f Field, v float64) {
	switch f {
	case FieldOpen:
		r.Open = v
	case FieldHigh:
		r.High = v
	case FieldLow:
		r.Low = v
	case FieldClose:
		r.Close = v
	case FieldVolume:
		r.Volume = v
	}
}

// Raw returns the column value of a raw bar, or nil if absent.
func (b RawBar) Raw(f Field) *float64 {
	switch f {
	case FieldOpen:
		return b.Open
	case FieldHigh:
		return b.High
	case FieldLow:
		return b.Low
	case FieldClose:
		return b.Close
	case FieldVolume:
		return b.Volume
	}
	return nil
}

// -----------------------------------------------------------------------------
// Output Types
// -----------------------------------------------------------------------------

// Series is the finalized output of one request.
type Series struct {
	RunID   uuid.UUID // Sync run that produced the series
	Request Request
	Bars    []BarRecord
}
