package sizing_test

import (
	"math"
	"strings"
	"testing"

	"github.com/atlas-desktop/journal-backend/internal/sizing"
	"github.com/shopspring/decimal"
)

func TestKellyBalancedBoundary(t *testing.T) {
	k := sizing.Kelly(50, 2)

	if math.Abs(k.Full-25) > 1e-9 {
		t.Fatalf("expected full Kelly 25, got %f", k.Full)
	}
	if k.Level != sizing.LevelBalanced {
		t.Errorf("expected balanced at exactly 25, got %s", k.Level)
	}
	if math.Abs(k.Half-12.5) > 1e-9 || math.Abs(k.Quarter-6.25) > 1e-9 {
		t.Errorf("unexpected fractions: half=%f quarter=%f", k.Half, k.Quarter)
	}
	if !strings.Contains(k.Recommendation, "Half Kelly") {
		t.Errorf("balanced level should recommend half Kelly, got %q", k.Recommendation)
	}
}

func TestKellyNegativeEdge(t *testing.T) {
	k := sizing.Kelly(30, 1)

	if k.Full != 0 || k.Half != 0 || k.Quarter != 0 {
		t.Fatalf("negative edge must clamp to 0, got %+v", k)
	}
	if k.Level != sizing.LevelConservative {
		t.Errorf("expected conservative, got %s", k.Level)
	}
	if !strings.Contains(strings.ToLower(k.Recommendation), "negative edge") {
		t.Errorf("recommendation should signal negative edge, got %q", k.Recommendation)
	}
	if k.RecommendedFraction() != 0 {
		t.Errorf("expected no recommended fraction, got %f", k.RecommendedFraction())
	}
}

func TestKellyLevels(t *testing.T) {
	tests := []struct {
		name     string
		winRate  float64
		rr       float64
		level    sizing.KellyLevel
		fraction func(sizing.KellyResult) float64
	}{
		// 0.6 - 0.4/2 = 0.4 -> 40%
		{"aggressive", 60, 2, sizing.LevelAggressive, func(k sizing.KellyResult) float64 { return k.Quarter }},
		// 0.5 - 0.5/1.5 = 0.1667 -> 16.67%
		{"balanced", 50, 1.5, sizing.LevelBalanced, func(k sizing.KellyResult) float64 { return k.Half }},
		// 0.55 - 0.45/1 = 0.10 -> 10%
		{"conservative", 55, 1, sizing.LevelConservative, func(k sizing.KellyResult) float64 { return k.Quarter }},
		// 0.5 - 0.5/1 = 0 -> negative-edge branch
		{"breakeven", 50, 1, sizing.LevelConservative, func(k sizing.KellyResult) float64 { return 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := sizing.Kelly(tt.winRate, tt.rr)
			if k.Level != tt.level {
				t.Errorf("expected level %s, got %s (full=%f)", tt.level, k.Level, k.Full)
			}
			if got, want := k.RecommendedFraction(), tt.fraction(k); math.Abs(got-want) > 1e-12 {
				t.Errorf("expected recommended fraction %f, got %f", want, got)
			}
		})
	}
}

func TestSuggestRisk(t *testing.T) {
	got := sizing.SuggestRisk(decimal.NewFromInt(10000), 6.25)
	if !got.Equal(decimal.NewFromInt(625)) {
		t.Errorf("expected 625, got %s", got)
	}

	if !sizing.SuggestRisk(decimal.NewFromInt(10000), 0).IsZero() {
		t.Error("zero Kelly should suggest no risk")
	}
	if !sizing.SuggestRisk(decimal.Zero, 5).IsZero() {
		t.Error("zero balance should suggest no risk")
	}
}
