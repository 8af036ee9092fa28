package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSettings(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSettingsLoader_MissingFile(t *testing.T) {
	l := NewSettingsLoader(filepath.Join(t.TempDir(), "trader_settings.json"))

	s := l.Load()
	want := DefaultSettings()
	if s.TradeStartLevel != want.TradeStartLevel || s.TrailingGapPct != want.TrailingGapPct {
		t.Errorf("Load() = %+v, want defaults", s)
	}
}

func TestSettingsLoader_Coercion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trader_settings.json")
	writeSettings(t, path, `{
		"coins": [" btc ", "eth"],
		"trade_start_level": "4",
		"start_allocation_pct": "0.01%",
		"dca_multiplier": 3,
		"trailing_gap_pct": "1.5%"
	}`)
	l := NewSettingsLoader(path)

	s := l.Load()
	if len(s.Coins) != 2 || s.Coins[0] != "BTC" || s.Coins[1] != "ETH" {
		t.Errorf("Coins = %v, want [BTC ETH]", s.Coins)
	}
	if s.TradeStartLevel != 4 {
		t.Errorf("TradeStartLevel = %d, want 4", s.TradeStartLevel)
	}
	if s.StartAllocationPct != 0.01 {
		t.Errorf("StartAllocationPct = %v, want 0.01", s.StartAllocationPct)
	}
	if s.DCAMultiplier != 3 {
		t.Errorf("DCAMultiplier = %v, want 3", s.DCAMultiplier)
	}
	if s.TrailingGapPct != 1.5 {
		t.Errorf("TrailingGapPct = %v, want 1.5", s.TrailingGapPct)
	}
	// Непереданные поля остаются дефолтными
	if s.MaxDCABuysPer24h != 2 {
		t.Errorf("MaxDCABuysPer24h = %d, want default 2", s.MaxDCABuysPer24h)
	}
}

func TestSettingsLoader_ClampsStartLevel(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"below range", `{"trade_start_level": 0}`, 1},
		{"above range", `{"trade_start_level": 99}`, 7},
		{"in range", `{"trade_start_level": 5}`, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "trader_settings.json")
			writeSettings(t, path, tt.body)
			l := NewSettingsLoader(path)

			if got := l.Load().TradeStartLevel; got != tt.want {
				t.Errorf("TradeStartLevel = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSettingsLoader_BadFieldKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trader_settings.json")
	writeSettings(t, path, `{"dca_multiplier": "not a number", "trailing_gap_pct": -2}`)
	l := NewSettingsLoader(path)

	s := l.Load()
	if s.DCAMultiplier != 2.0 {
		t.Errorf("DCAMultiplier = %v, want default 2.0 for unparseable value", s.DCAMultiplier)
	}
	if s.TrailingGapPct != 0.5 {
		t.Errorf("TrailingGapPct = %v, want default 0.5 for negative value", s.TrailingGapPct)
	}
}

func TestSettingsLoader_ReloadsOnMtimeChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trader_settings.json")
	writeSettings(t, path, `{"dca_multiplier": 2}`)
	l := NewSettingsLoader(path)

	if got := l.Load().DCAMultiplier; got != 2 {
		t.Fatalf("DCAMultiplier = %v, want 2", got)
	}

	writeSettings(t, path, `{"dca_multiplier": 4}`)
	// mtime должен отличаться даже на файловых системах с грубым разрешением
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	if got := l.Load().DCAMultiplier; got != 4 {
		t.Errorf("DCAMultiplier after reload = %v, want 4", got)
	}
}

func TestNextDCALevel_RepeatsLast(t *testing.T) {
	s := DefaultSettings()

	if got := s.NextDCALevel(0); got != -2.5 {
		t.Errorf("NextDCALevel(0) = %v, want -2.5", got)
	}
	if got := s.NextDCALevel(6); got != -50 {
		t.Errorf("NextDCALevel(6) = %v, want -50", got)
	}
	if got := s.NextDCALevel(20); got != -50 {
		t.Errorf("NextDCALevel(20) = %v, want last level -50", got)
	}
}

func TestTrailingSig_ChangesWithTrailingFields(t *testing.T) {
	a := DefaultSettings()
	b := DefaultSettings()
	if a.TrailingSig() != b.TrailingSig() {
		t.Error("identical settings must share a signature")
	}

	b.TrailingGapPct = 1.0
	if a.TrailingSig() == b.TrailingSig() {
		t.Error("signature must change with trailing gap")
	}

	c := DefaultSettings()
	c.DCAMultiplier = 9
	if a.TrailingSig() != c.TrailingSig() {
		t.Error("signature must ignore non-trailing fields")
	}
}
