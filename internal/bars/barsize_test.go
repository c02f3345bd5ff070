package bars

import (
	"errors"
	"testing"
	"time"
)

func TestParseBarSize(t *testing.T) {
	tests := []struct {
		input string
		want  BarSize
	}{
		{"1 sec", BarSize{1, Second}},
		{"5 secs", BarSize{5, Second}},
		{"30 seconds", BarSize{30, Second}},
		{"1 min", BarSize{1, Minute}},
		{"15 mins", BarSize{15, Minute}},
		{"2 minutes", BarSize{2, Minute}},
		{"1 hour", BarSize{1, Hour}},
		{"4 hours", BarSize{4, Hour}},
		{"1 day", BarSize{1, Day}},
		{"2 weeks", BarSize{2, Week}},
		{"1 month", BarSize{1, Month}},
		{"  3   Months ", BarSize{3, Month}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBarSize(tt.input)
			if err != nil {
				t.Fatalf("ParseBarSize(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseBarSize(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseBarSize_Unsupported(t *testing.T) {
	inputs := []string{"", "hour", "1", "0 min", "-1 min", "x min", "1 fortnight", "1 hour extra", "1 years"}

	for _, input := range inputs {
		_, err := ParseBarSize(input)
		if !errors.Is(err, ErrUnsupportedBarSize) {
			t.Errorf("ParseBarSize(%q) error = %v, want ErrUnsupportedBarSize", input, err)
		}
	}
}

func TestBarSize_Next(t *testing.T) {
	base := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		size string
		want time.Time
	}{
		{"1 sec", base.Add(time.Second)},
		{"30 secs", base.Add(30 * time.Second)},
		{"1 min", base.Add(time.Minute)},
		{"5 mins", base.Add(5 * time.Minute)},
		{"1 hour", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"3 hours", time.Date(2024, 1, 15, 12, 30, 0, 0, time.UTC)},
		{"1 day", time.Date(2024, 1, 16, 9, 30, 0, 0, time.UTC)},
		{"2 days", time.Date(2024, 1, 17, 9, 30, 0, 0, time.UTC)},
		{"1 week", time.Date(2024, 1, 22, 9, 30, 0, 0, time.UTC)},
		{"1 month", time.Date(2024, 2, 15, 9, 30, 0, 0, time.UTC)},
		{"12 months", time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.size, func(t *testing.T) {
			size, err := ParseBarSize(tt.size)
			if err != nil {
				t.Fatalf("ParseBarSize(%q) error = %v", tt.size, err)
			}
			if got := size.Next(base); !got.Equal(tt.want) {
				t.Errorf("Next(%v) = %v, want %v", base, got, tt.want)
			}
		})
	}
}

func TestBarSize_String(t *testing.T) {
	if got := (BarSize{1, Hour}).String(); got != "1 hour" {
		t.Errorf("String() = %q, want %q", got, "1 hour")
	}
	if got := (BarSize{5, Minute}).String(); got != "5 minutes" {
		t.Errorf("String() = %q, want %q", got, "5 minutes")
	}
}
