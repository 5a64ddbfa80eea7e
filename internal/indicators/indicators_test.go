package indicators

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	if got := SMA(values, 5); !almostEqual(got, 3, 1e-9) {
		t.Fatalf("SMA = %v, want 3", got)
	}
	if got := SMA(values, 2); !almostEqual(got, 4.5, 1e-9) {
		t.Fatalf("SMA(2) = %v, want 4.5", got)
	}
	if got := SMA(values, 10); got != 0 {
		t.Fatalf("SMA short series = %v, want 0", got)
	}
}

func TestEMAFollowsTrend(t *testing.T) {
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	ema := EMA(rising, 10)
	sma := SMA(rising, 10)
	if ema <= sma {
		t.Fatalf("EMA %v should lead SMA %v on a rising series", ema, sma)
	}
}

func TestRSIExtremes(t *testing.T) {
	rising := make([]float64, 20)
	falling := make([]float64, 20)
	for i := range rising {
		rising[i] = 100 + float64(i)
		falling[i] = 100 - float64(i)
	}
	if got := RSI(rising, 14); got != 100 {
		t.Fatalf("RSI all-gains = %v, want 100", got)
	}
	if got := RSI(falling, 14); got > 1 {
		t.Fatalf("RSI all-losses = %v, want near 0", got)
	}
	if got := RSI([]float64{1, 2}, 14); got != 50 {
		t.Fatalf("RSI short series = %v, want 50", got)
	}
}

func TestATRConstantRange(t *testing.T) {
	candles := make([]Candle, 20)
	for i := range candles {
		candles[i] = Candle{Open: 100, High: 101, Low: 99, Close: 100}
	}
	if got := ATR(candles, 14); !almostEqual(got, 2, 1e-9) {
		t.Fatalf("ATR = %v, want 2", got)
	}
}

func TestADXTrendVsChop(t *testing.T) {
	trending := make([]Candle, 60)
	for i := range trending {
		base := 100 + float64(i)
		trending[i] = Candle{Open: base, High: base + 1, Low: base - 1, Close: base + 0.8}
	}
	choppy := make([]Candle, 60)
	for i := range choppy {
		base := 100.0
		if i%2 == 0 {
			base += 0.5
		}
		choppy[i] = Candle{Open: base, High: base + 1, Low: base - 1, Close: base}
	}

	trendADX := ADX(trending, 14)
	chopADX := ADX(choppy, 14)
	if trendADX <= chopADX {
		t.Fatalf("ADX trend %v should exceed chop %v", trendADX, chopADX)
	}
	if trendADX < 25 {
		t.Fatalf("ADX on a steady trend = %v, want >= 25", trendADX)
	}
}
