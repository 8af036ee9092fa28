package strategy

import (
	"fmt"
	"time"

	"github.com/kirillm/powertrader/internal/config"
	"github.com/kirillm/powertrader/internal/domain"
)

// Decision — результат оценки символа на одном проходе цикла
type Decision struct {
	Action  string
	SizeUSD float64
	Reason  string
	Details map[string]interface{}
}

// EvaluateEntry решает, открывать ли стартовую позицию по символу.
// Вход разрешен только при сильном длинном сигнале и полном отсутствии
// короткого. Размер входа — доля текущей стоимости аккаунта.
func EvaluateEntry(sig domain.SignalSnapshot, settings config.Settings, accountValue float64) Decision {
	if sig.Stale {
		return Decision{
			Action: domain.ActionSkip,
			Reason: "signal snapshot missing or stale",
		}
	}
	if sig.LongLevel < settings.TradeStartLevel || sig.ShortLevel != 0 {
		return Decision{
			Action: domain.ActionSkip,
			Reason: fmt.Sprintf("signal gate not met: long=%d short=%d need long>=%d short==0",
				sig.LongLevel, sig.ShortLevel, settings.TradeStartLevel),
			Details: map[string]interface{}{
				"long":  sig.LongLevel,
				"short": sig.ShortLevel,
			},
		}
	}

	size := accountValue * settings.StartAllocationPct / 100
	if size < domain.MinMarketOrderUSD {
		size = domain.MinMarketOrderUSD
	}
	return Decision{
		Action:  domain.ActionEntry,
		SizeUSD: size,
		Reason: fmt.Sprintf("entry gate met: long=%d short=%d, sizing %.4f%% of $%.2f",
			sig.LongLevel, sig.ShortLevel, settings.StartAllocationPct, accountValue),
		Details: map[string]interface{}{
			"long":          sig.LongLevel,
			"short":         sig.ShortLevel,
			"account_value": accountValue,
		},
	}
}

// EvaluateDCA решает, докупать ли просевшую позицию.
// Триггер либо по предсказанной линии поддержки из сигнального снимка,
// либо по ступеням просадки от средней себестоимости. Окно 24 часа и
// пауза между докупками ограничивают частоту.
func EvaluateDCA(pos *domain.Position, sig domain.SignalSnapshot, settings config.Settings, price float64, now time.Time) Decision {
	if price <= 0 || pos.CostBasis <= 0 {
		return Decision{Action: domain.ActionDCASkip, Reason: "no usable price or cost basis"}
	}

	pnlPct := (price - pos.CostBasis) / pos.CostBasis * 100
	details := map[string]interface{}{
		"price":      price,
		"cost_basis": pos.CostBasis,
		"pnl_pct":    pnlPct,
		"dca_stage":  pos.DCAStage,
	}

	triggered, why := dcaTrigger(pos, sig, settings, price, pnlPct)
	if !triggered {
		return Decision{Action: domain.ActionDCASkip, Reason: why, Details: details}
	}

	recent := countWindow(pos.DCABuyTimes, now.Add(-24*time.Hour))
	if recent >= settings.MaxDCABuysPer24h {
		return Decision{
			Action:  domain.ActionDCASkip,
			Reason:  fmt.Sprintf("24h window full: %d of %d buys used", recent, settings.MaxDCABuysPer24h),
			Details: details,
		}
	}
	if cooldown := time.Duration(settings.DCACooldownMinutes) * time.Minute; cooldown > 0 {
		if last, ok := lastBuy(pos.DCABuyTimes); ok && now.Sub(last) < cooldown {
			return Decision{
				Action:  domain.ActionDCASkip,
				Reason:  fmt.Sprintf("cooldown: last DCA buy %.0f min ago, need %d", now.Sub(last).Minutes(), settings.DCACooldownMinutes),
				Details: details,
			}
		}
	}

	size := pos.LastBuyUSD * settings.DCAMultiplier
	if size < domain.MinMarketOrderUSD {
		size = domain.MinMarketOrderUSD
	}
	return Decision{
		Action:  domain.ActionDCA,
		SizeUSD: size,
		Reason:  why,
		Details: details,
	}
}

// dcaTrigger проверяет оба условия докупки по порядку
func dcaTrigger(pos *domain.Position, sig domain.SignalSnapshot, settings config.Settings, price, pnlPct float64) (bool, string) {
	// Линия поддержки из прогноза: следующая неизрасходованная ступень.
	// Положительная позиция под линией не докупается.
	if !sig.Stale && pnlPct < 0 {
		idx := settings.TradeStartLevel + pos.DCAStage
		if idx < len(sig.PredictedLows) {
			line := sig.PredictedLows[idx]
			if line > 0 && price < line {
				return true, fmt.Sprintf("price %.4f below predicted low %.4f (line %d)", price, line, idx)
			}
		}
	}

	level := settings.NextDCALevel(pos.DCAStage)
	if pnlPct <= level {
		return true, fmt.Sprintf("drawdown %.2f%% at or below stage %d level %.2f%%", pnlPct, pos.DCAStage, level)
	}
	return false, fmt.Sprintf("no trigger: pnl %.2f%% above level %.2f%%", pnlPct, level)
}

func countWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, t := range times {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

func lastBuy(times []time.Time) (time.Time, bool) {
	if len(times) == 0 {
		return time.Time{}, false
	}
	last := times[0]
	for _, t := range times[1:] {
		if t.After(last) {
			last = t
		}
	}
	return last, true
}
