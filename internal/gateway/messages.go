package gateway

import (
	"time"

	"github.com/rickgao/market-scout/internal/model"
)

// Frame types
const (
	TypeHello          = "hello"
	TypeWelcome        = "welcome"
	TypeHistoricalData = "historical_data"
	TypeBar            = "bar"
	TypeBarEnd         = "bar_end"
	TypeError          = "error"
)

// HelloFrame opens a session.
type HelloFrame struct {
	Type     string `json:"type"`
	ClientID int    `json:"client_id"`
}

// HistoricalDataFrame requests historical bars.
type HistoricalDataFrame struct {
	Type       string `json:"type"`
	ReqID      int64  `json:"req_id"`
	Instrument string `json:"instrument"`
	End        string `json:"end"`      // "" = now
	Duration   string `json:"duration"` // e.g. "2 D"
	BarSize    string `json:"bar_size"` // e.g. "1 hour"
	RTH        bool   `json:"rth"`
}

// BarPayload is a bar as sent by the gateway. Any field may be null.
type BarPayload struct {
	Time   *int64   `json:"time"` // Unix seconds
	Open   *float64 `json:"open"`
	High   *float64 `json:"high"`
	Low    *float64 `json:"low"`
	Close  *float64 `json:"close"`
	Volume *float64 `json:"volume"`
}

// Envelope is any frame received from the gateway.
type Envelope struct {
	Type          string      `json:"type"`
	ReqID         int64       `json:"req_id"`
	ServerVersion int         `json:"server_version,omitempty"`
	Bar           *BarPayload `json:"bar,omitempty"`
	Start         string      `json:"start,omitempty"`
	End           string      `json:"end,omitempty"`
	Code          int         `json:"code,omitempty"`
	Msg           string      `json:"msg,omitempty"`
}

func newHistoricalDataFrame(req model.Request) HistoricalDataFrame {
	return HistoricalDataFrame{
		Type:       TypeHistoricalData,
		ReqID:      req.ID,
		Instrument: req.Instrument,
		End:        req.EndAnchor(),
		Duration:   req.Duration,
		BarSize:    req.BarSize,
		RTH:        req.RegularOnly,
	}
}

// RawBar converts the payload to a model.RawBar.
func (b BarPayload) RawBar() model.RawBar {
	raw := model.RawBar{
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
	if b.Time != nil {
		ts := time.Unix(*b.Time, 0).UTC()
		raw.Time = &ts
	}
	return raw
}
