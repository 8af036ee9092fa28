package engine

import (
	"context"
	"time"

	"github.com/kirillm/powertrader/internal/broker"
	"github.com/kirillm/powertrader/internal/config"
	"github.com/kirillm/powertrader/internal/domain"
	"github.com/kirillm/powertrader/internal/hub"
)

// marketView — все рыночные данные одного прохода. Снимок собирается
// в начале прохода и не обновляется до следующего.
type marketView struct {
	account  domain.AccountSnapshot
	quotes   map[string]broker.Quote
	holdings map[string]float64
	degraded bool
}

// fetchMarketView опрашивает брокера и строит снимок рынка. Любой отказ
// брокера закрывается последним удачным значением: проход на устаревших
// данных лучше слепого прохода, а торговые решения при degraded не
// принимаются.
func (e *Engine) fetchMarketView(ctx context.Context, settings config.Settings) *marketView {
	view := &marketView{
		quotes:   make(map[string]broker.Quote),
		holdings: make(map[string]float64),
	}

	holdings, err := e.broker.GetHoldings(ctx)
	if err != nil {
		e.logger.Warn("Failed to fetch holdings: %v", err)
		e.metrics.BrokerErrors.Inc()
		view.degraded = true
		for sym, qty := range e.lastHoldings {
			view.holdings[sym] = qty
		}
	} else {
		for _, h := range holdings {
			if h.Quantity > 0 {
				view.holdings[h.Symbol] = h.Quantity
			}
		}
		e.lastHoldings = view.holdings
	}

	products := make([]string, 0, len(view.holdings)+len(settings.Coins))
	seen := make(map[string]bool)
	for sym := range view.holdings {
		products = append(products, domain.ProductID(sym))
		seen[sym] = true
	}
	for _, sym := range settings.Coins {
		if !seen[sym] {
			products = append(products, domain.ProductID(sym))
		}
	}

	quotes, err := e.broker.GetPrices(ctx, products)
	if err != nil {
		e.logger.Warn("Failed to fetch prices: %v", err)
		e.metrics.BrokerErrors.Inc()
		view.degraded = true
		for sym, q := range e.lastQuotes {
			view.quotes[sym] = q
		}
	} else {
		for product, q := range quotes {
			view.quotes[stripProduct(product)] = q
		}
		e.lastQuotes = view.quotes
	}

	bp, err := e.broker.GetBuyingPower(ctx)
	if err != nil {
		e.logger.Warn("Failed to fetch buying power: %v", err)
		e.metrics.BrokerErrors.Inc()
		view.degraded = true
		bp = e.lastAccount.BuyingPower
	}

	var sellValue, buyValue float64
	for sym, qty := range view.holdings {
		q, ok := view.quotes[sym]
		if !ok {
			continue
		}
		sellValue += qty * q.Bid
		buyValue += qty * q.Ask
	}

	view.account = domain.AccountSnapshot{
		TotalValue:        bp + sellValue,
		BuyingPower:       bp,
		HoldingsSellValue: sellValue,
		HoldingsBuyValue:  buyValue,
	}
	if view.account.TotalValue > 0 {
		view.account.PercentInTrade = sellValue / view.account.TotalValue * 100
	}

	if view.degraded {
		// При деградации итог считается от последнего целого снимка,
		// чтобы статус не показывал провал капитала из-за пропуска
		if e.lastAccount.TotalValue > 0 {
			view.account = e.lastAccount
		}
	} else {
		e.lastAccount = view.account
	}
	return view
}

func stripProduct(product string) string {
	if n := len(product); n > 4 && product[n-4:] == "-"+domain.QuoteCurrency {
		return product[:n-4]
	}
	return product
}

// sellPrice возвращает цену продажи символа или 0
func (v *marketView) sellPrice(symbol string) float64 {
	return v.quotes[symbol].Bid
}

// buyPrice возвращает цену покупки символа или 0
func (v *marketView) buyPrice(symbol string) float64 {
	return v.quotes[symbol].Ask
}

// publishStatus перезаписывает trader_status.json и дописывает кривую капитала
func (e *Engine) publishStatus(view *marketView, settings config.Settings, ready bool) {
	status := &domain.StatusSnapshot{
		Timestamp: time.Now(),
		Paused:    e.isPaused(),
		Ready:     ready,
		Account: domain.AccountStatus{
			AccountSnapshot:   view.account,
			PMStartPctNoDCA:   settings.PMStartPctNoDCA,
			PMStartPctWithDCA: settings.PMStartPctWithDCA,
			TrailingGapPct:    settings.TrailingGapPct,
		},
		Positions: make(map[string]domain.PositionStatus),
	}

	for sym, qty := range view.holdings {
		ps := domain.PositionStatus{
			Quantity:  qty,
			BuyPrice:  view.buyPrice(sym),
			SellPrice: view.sellPrice(sym),
			ValueUSD:  qty * view.sellPrice(sym),
		}
		if pos := e.book.Position(sym); pos != nil && pos.Managed() {
			ps.AvgCostBasis = pos.CostBasis
			ps.DCAStage = pos.DCAStage
			ps.TrailPhase = pos.Trailing.Phase
			ps.TrailLine = pos.Trailing.Line
			ps.TrailPeak = pos.Trailing.Peak
			ps.NeedsAttention = pos.NeedsAttention
			ps.LastReason = e.lastReasons[sym]
			if pos.NeedsAttention {
				ps.LastReason = pos.AttentionReason
			}
			if pos.CostBasis > 0 {
				ps.PnLPctBuy = (ps.BuyPrice - pos.CostBasis) / pos.CostBasis * 100
				ps.PnLPctSell = (ps.SellPrice - pos.CostBasis) / pos.CostBasis * 100
			}
			line, source := e.nextDCALine(pos, settings)
			ps.NextDCALine = line
			ps.NextDCASource = source
		}
		status.Positions[sym] = ps
	}

	if err := e.hub.WriteSnapshot(hub.StatusFile, status); err != nil {
		e.logger.Error("Failed to write status snapshot: %v", err)
	}
	if !view.degraded {
		point := map[string]interface{}{
			"ts":           status.Timestamp,
			"total_value":  view.account.TotalValue,
			"buying_power": view.account.BuyingPower,
		}
		if err := e.hub.AppendLog(hub.AccountHistoryFile, point); err != nil {
			e.logger.Error("Failed to append account history: %v", err)
		}
	}

	e.mu.Lock()
	e.lastStatus = status
	e.mu.Unlock()

	e.metrics.AccountValue.Set(view.account.TotalValue)
	e.metrics.RealizedProfit.Set(e.book.TotalRealized())
	e.metrics.PendingOrders.Set(float64(len(e.book.PendingOrders())))
}

// nextDCALine вычисляет ближайшую линию докупки для дашборда
func (e *Engine) nextDCALine(pos *domain.Position, settings config.Settings) (float64, string) {
	sig := e.signals.Snapshot(pos.Symbol)
	if !sig.Stale {
		idx := settings.TradeStartLevel + pos.DCAStage
		if idx < len(sig.PredictedLows) && sig.PredictedLows[idx] > 0 {
			return sig.PredictedLows[idx], "predicted_low"
		}
	}
	level := settings.NextDCALevel(pos.DCAStage)
	return pos.CostBasis * (1 + level/100), "drawdown"
}
