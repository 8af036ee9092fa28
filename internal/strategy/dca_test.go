package strategy

import (
	"testing"
	"time"

	"github.com/kirillm/powertrader/internal/config"
	"github.com/kirillm/powertrader/internal/domain"
)

func freshSignal(long, short int, lows []float64) domain.SignalSnapshot {
	return domain.SignalSnapshot{
		Symbol:        "BTC",
		LongLevel:     long,
		ShortLevel:    short,
		PredictedLows: lows,
		GeneratedAt:   time.Now(),
	}
}

func TestEvaluateEntry_Gate(t *testing.T) {
	settings := config.DefaultSettings()

	tests := []struct {
		name       string
		long       int
		short      int
		stale      bool
		wantAction string
	}{
		{"strong long no short", 3, 0, false, domain.ActionEntry},
		{"stronger long", 7, 0, false, domain.ActionEntry},
		{"long too weak", 2, 0, false, domain.ActionSkip},
		{"short present", 5, 1, false, domain.ActionSkip},
		{"both zero", 0, 0, false, domain.ActionSkip},
		{"stale signal", 7, 0, true, domain.ActionSkip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := freshSignal(tt.long, tt.short, nil)
			sig.Stale = tt.stale

			d := EvaluateEntry(sig, settings, 10000)
			if d.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q (%s)", d.Action, tt.wantAction, d.Reason)
			}
		})
	}
}

func TestEvaluateEntry_Sizing(t *testing.T) {
	settings := config.DefaultSettings()
	settings.StartAllocationPct = 0.5

	d := EvaluateEntry(freshSignal(4, 0, nil), settings, 10000)
	if d.Action != domain.ActionEntry {
		t.Fatalf("Action = %q, want entry", d.Action)
	}
	if d.SizeUSD != 50 {
		t.Errorf("SizeUSD = %v, want 0.5%% of 10000 = 50", d.SizeUSD)
	}
}

func TestEvaluateEntry_MinimumOrder(t *testing.T) {
	settings := config.DefaultSettings()
	settings.StartAllocationPct = 0.001

	d := EvaluateEntry(freshSignal(4, 0, nil), settings, 100)
	if d.SizeUSD != domain.MinMarketOrderUSD {
		t.Errorf("SizeUSD = %v, want floored to $%v", d.SizeUSD, domain.MinMarketOrderUSD)
	}
}

func dcaPosition(costBasis float64, stage int) *domain.Position {
	return &domain.Position{
		Symbol:     "BTC",
		Quantity:   1,
		USDCost:    costBasis,
		CostBasis:  costBasis,
		EntryDone:  true,
		DCAStage:   stage,
		LastBuyUSD: 50,
	}
}

func TestEvaluateDCA_DrawdownTrigger(t *testing.T) {
	settings := config.DefaultSettings()
	now := time.Now()

	tests := []struct {
		name       string
		price      float64
		stage      int
		wantAction string
	}{
		{"above first level", 98.0, 0, domain.ActionDCASkip},
		{"at first level -2.5%", 97.5, 0, domain.ActionDCA},
		{"deep below first level", 90.0, 0, domain.ActionDCA},
		{"stage 1 needs -5%", 96.0, 1, domain.ActionDCASkip},
		{"stage 1 at -5%", 95.0, 1, domain.ActionDCA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := dcaPosition(100, tt.stage)
			sig := domain.SignalSnapshot{Symbol: "BTC", Stale: true}

			d := EvaluateDCA(pos, sig, settings, tt.price, now)
			if d.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q (%s)", d.Action, tt.wantAction, d.Reason)
			}
		})
	}
}

func TestEvaluateDCA_PredictedLowTrigger(t *testing.T) {
	settings := config.DefaultSettings()
	now := time.Now()
	pos := dcaPosition(100, 0)

	// Линия индекса start_level+stage = 3: цена 98.5 ниже 99, просадка
	// всего -1.5% — жесткая лестница еще молчит
	lows := []float64{103, 102, 100, 99, 97, 95, 93}
	d := EvaluateDCA(pos, freshSignal(4, 0, lows), settings, 98.5, now)
	if d.Action != domain.ActionDCA {
		t.Errorf("Action = %q, want DCA from predicted low (%s)", d.Action, d.Reason)
	}
}

func TestEvaluateDCA_PredictedLowNeedsLoss(t *testing.T) {
	settings := config.DefaultSettings()
	now := time.Now()
	pos := dcaPosition(100, 0)

	// Цена ниже прогнозной линии, но позиция в плюсе: докупки нет
	lows := []float64{110, 108, 106, 105, 104, 103, 102}
	d := EvaluateDCA(pos, freshSignal(4, 0, lows), settings, 101, now)
	if d.Action != domain.ActionDCASkip {
		t.Errorf("Action = %q, want skip for profitable position (%s)", d.Action, d.Reason)
	}
}

func TestEvaluateDCA_WindowLimit(t *testing.T) {
	settings := config.DefaultSettings()
	now := time.Now()

	pos := dcaPosition(100, 0)
	pos.DCABuyTimes = []time.Time{now.Add(-20 * time.Hour), now.Add(-2 * time.Hour)}

	d := EvaluateDCA(pos, domain.SignalSnapshot{Stale: true}, settings, 90, now)
	if d.Action != domain.ActionDCASkip {
		t.Errorf("Action = %q, want skip with 2 buys in the window (%s)", d.Action, d.Reason)
	}

	// Старая покупка выпала из окна, остается одна
	pos.DCABuyTimes = []time.Time{now.Add(-25 * time.Hour), now.Add(-2 * time.Hour)}
	d = EvaluateDCA(pos, domain.SignalSnapshot{Stale: true}, settings, 90, now)
	if d.Action != domain.ActionDCA {
		t.Errorf("Action = %q, want DCA after the window slid (%s)", d.Action, d.Reason)
	}
}

func TestEvaluateDCA_Cooldown(t *testing.T) {
	settings := config.DefaultSettings()
	now := time.Now()

	pos := dcaPosition(100, 0)
	pos.DCABuyTimes = []time.Time{now.Add(-30 * time.Minute)}

	d := EvaluateDCA(pos, domain.SignalSnapshot{Stale: true}, settings, 90, now)
	if d.Action != domain.ActionDCASkip {
		t.Errorf("Action = %q, want skip inside the 60m cooldown (%s)", d.Action, d.Reason)
	}

	pos.DCABuyTimes = []time.Time{now.Add(-90 * time.Minute)}
	d = EvaluateDCA(pos, domain.SignalSnapshot{Stale: true}, settings, 90, now)
	if d.Action != domain.ActionDCA {
		t.Errorf("Action = %q, want DCA after the cooldown (%s)", d.Action, d.Reason)
	}
}

func TestEvaluateDCA_Sizing(t *testing.T) {
	settings := config.DefaultSettings()
	pos := dcaPosition(100, 0)
	pos.LastBuyUSD = 40

	d := EvaluateDCA(pos, domain.SignalSnapshot{Stale: true}, settings, 90, time.Now())
	if d.Action != domain.ActionDCA {
		t.Fatalf("Action = %q, want DCA", d.Action)
	}
	if d.SizeUSD != 80 {
		t.Errorf("SizeUSD = %v, want last buy 40 x multiplier 2", d.SizeUSD)
	}
}

func TestEvaluateDCA_NoCostBasis(t *testing.T) {
	settings := config.DefaultSettings()
	pos := &domain.Position{Symbol: "BTC", Quantity: 1}

	d := EvaluateDCA(pos, domain.SignalSnapshot{Stale: true}, settings, 90, time.Now())
	if d.Action != domain.ActionDCASkip {
		t.Errorf("Action = %q, want skip without cost basis", d.Action)
	}
}
