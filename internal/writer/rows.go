package writer

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rickgao/market-scout/internal/model"
)

// barRow is the storage representation of a BarRecord.
type barRow struct {
	Instrument string   `json:"instrument" parquet:"instrument"`
	BarSize    string   `json:"bar_size" parquet:"bar_size"`
	Time       int64    `json:"t" parquet:"t"` // Unix seconds, UTC
	Open       *float64 `json:"o" parquet:"o,optional"`
	High       *float64 `json:"h" parquet:"h,optional"`
	Low        *float64 `json:"l" parquet:"l,optional"`
	Close      *float64 `json:"c" parquet:"c,optional"`
	Volume     *float64 `json:"v" parquet:"v,optional"`
	Partial    bool     `json:"partial" parquet:"partial"`
	RunID      string   `json:"run_id" parquet:"run_id"`
}

// seriesDoc is the JSON document written by the JSON and Redis savers.
type seriesDoc struct {
	RunID       string   `json:"run_id"`
	ReqID       int64    `json:"req_id"`
	Instrument  string   `json:"instrument"`
	BarSize     string   `json:"bar_size"`
	Duration    string   `json:"duration"`
	End         string   `json:"end,omitempty"`
	RegularOnly bool     `json:"rth"`
	Bars        []barRow `json:"bars"`
}

func toRows(s model.Series) []barRow {
	runID := s.RunID.String()
	rows := make([]barRow, len(s.Bars))
	for i, b := range s.Bars {
		instrument := b.Instrument
		if instrument == "" {
			instrument = s.Request.Instrument
		}
		rows[i] = barRow{
			Instrument: instrument,
			BarSize:    s.Request.BarSize,
			Time:       b.Time.Unix(),
			Open:       optional(b.Open),
			High:       optional(b.High),
			Low:        optional(b.Low),
			Close:      optional(b.Close),
			Volume:     optional(b.Volume),
			Partial:    b.PartiallyMissing,
			RunID:      runID,
		}
	}
	return rows
}

func toDoc(s model.Series) seriesDoc {
	return seriesDoc{
		RunID:       s.RunID.String(),
		ReqID:       s.Request.ID,
		Instrument:  s.Request.Instrument,
		BarSize:     s.Request.BarSize,
		Duration:    s.Request.Duration,
		End:         s.Request.EndAnchor(),
		RegularOnly: s.Request.RegularOnly,
		Bars:        toRows(s),
	}
}

// optional maps NaN to nil.
func optional(f float64) *float64 {
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

func floatStr(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkTable(name string) error {
	if !tableName.MatchString(name) {
		return ErrInvalidTable
	}
	return nil
}

// ExpandTarget substitutes {instrument}, {bar_size} and {run} in a file target.
func ExpandTarget(target string, s model.Series) string {
	r := strings.NewReplacer(
		"{instrument}", s.Request.Instrument,
		"{bar_size}", strings.ReplaceAll(s.Request.BarSize, " ", ""),
		"{run}", s.RunID.String(),
	)
	return r.Replace(target)
}
