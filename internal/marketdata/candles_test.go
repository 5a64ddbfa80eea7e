package marketdata

import (
	"testing"
	"time"
)

func TestCandleRollover(t *testing.T) {
	s := NewCandleSeries(time.Minute, 10)
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	s.Apply("XAUUSD", 100, base)
	s.Apply("XAUUSD", 103, base.Add(20*time.Second))
	s.Apply("XAUUSD", 99, base.Add(40*time.Second))
	s.Apply("XAUUSD", 101, base.Add(50*time.Second))

	// Still inside the first minute: nothing closed yet.
	if got := s.Recent("XAUUSD"); len(got) != 0 {
		t.Fatalf("closed candles = %d, want 0", len(got))
	}

	// First tick of the next minute closes the candle.
	s.Apply("XAUUSD", 102, base.Add(time.Minute))
	got := s.Recent("XAUUSD")
	if len(got) != 1 {
		t.Fatalf("closed candles = %d, want 1", len(got))
	}
	c := got[0]
	if c.Open != 100 || c.High != 103 || c.Low != 99 || c.Close != 101 {
		t.Fatalf("candle = %+v", c)
	}
}

func TestCandleSeriesBounded(t *testing.T) {
	s := NewCandleSeries(time.Minute, 3)
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		s.Apply("EURUSD", 1.08+float64(i)*0.001, base.Add(time.Duration(i)*time.Minute))
	}
	if got := s.Recent("EURUSD"); len(got) != 3 {
		t.Fatalf("kept candles = %d, want 3", len(got))
	}
}

func TestSymbolsIsolated(t *testing.T) {
	s := NewCandleSeries(time.Minute, 10)
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	s.Apply("XAUUSD", 2400, base)
	s.Apply("EURUSD", 1.08, base)
	s.Apply("XAUUSD", 2401, base.Add(time.Minute))

	if got := s.Recent("XAUUSD"); len(got) != 1 {
		t.Fatalf("XAUUSD closed = %d, want 1", len(got))
	}
	if got := s.Recent("EURUSD"); len(got) != 0 {
		t.Fatalf("EURUSD closed = %d, want 0", len(got))
	}
}
