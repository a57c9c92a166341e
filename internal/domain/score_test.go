package domain

import (
	"math"
	"testing"
)

func TestScaledScore(t *testing.T) {
	tests := []struct {
		name            string
		score, min, max float64
		want            float64
	}{
		{"over max clamps to 1", 150, 0, 100, 1},
		{"under min clamps to -1", -500, 0, 100, -1},
		{"midpoint", 50, 0, 100, 0.5},
		{"offset range", 75, 50, 100, 0.5},
		{"empty range", 10, 10, 10, 0},
		{"inverted range", 50, 100, 0, 0},
		{"nan score", math.NaN(), 0, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScaledScore(tt.score, tt.min, tt.max)
			if math.IsNaN(got) || got != tt.want {
				t.Errorf("ScaledScore(%v, %v, %v) = %v, want %v", tt.score, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

func TestClampScore(t *testing.T) {
	if got := ClampScore(150, 0, 100); got != 100 {
		t.Errorf("ClampScore(150, 0, 100) = %v, want 100", got)
	}
	if got := ClampScore(-3, 0, 100); got != 0 {
		t.Errorf("ClampScore(-3, 0, 100) = %v, want 0", got)
	}
	if got := ClampScore(42, 100, 0); got != 42 {
		t.Errorf("ClampScore with inverted range = %v, want unchanged 42", got)
	}
}

func TestFormatScore(t *testing.T) {
	tests := map[float64]string{
		100:     "100",
		0:       "0",
		87.5:    "87.5",
		0.33333: "0.3333",
		-1:      "-1",
	}
	for in, want := range tests {
		if got := FormatScore(in); got != want {
			t.Errorf("FormatScore(%v) = %q, want %q", in, got, want)
		}
	}
}
