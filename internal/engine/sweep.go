package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirillm/powertrader/internal/config"
	"github.com/kirillm/powertrader/internal/domain"
	"github.com/kirillm/powertrader/internal/hub"
	"github.com/kirillm/powertrader/internal/strategy"
	"github.com/kirillm/powertrader/internal/telegram"
)

// Sweep выполняет один проход: собирает рынок, разбирает ручные команды,
// ведет трейлинг и докупки по открытым позициям, ищет точки входа по
// остальным монетам и публикует статус.
func (e *Engine) Sweep(ctx context.Context) {
	started := time.Now()
	defer e.metrics.ObserveSweep(started)

	settings := e.settings.Load()
	ready := e.signals.Ready()
	view := e.fetchMarketView(ctx, settings)

	if err := e.hub.RotateLog(hub.DecisionLogFile, e.cfg.Engine.AuditLogMaxLines); err != nil {
		e.logger.Warn("Failed to rotate decision log: %v", err)
	}
	if err := e.hub.RotateLog(hub.AccountHistoryFile, e.cfg.Engine.HistoryMaxLines); err != nil {
		e.logger.Warn("Failed to rotate account history: %v", err)
	}

	e.processManualCommands(ctx, view, settings)

	switch {
	case e.isPaused():
		e.logger.Debug("Sweep skipped: trading paused")
	case !ready:
		e.logger.Debug("Sweep skipped: signals not ready")
	case view.degraded:
		e.logger.Warn("Sweep skipped: market data degraded, running on last good snapshot")
	default:
		e.sweepPositions(ctx, view, settings)
		e.sweepEntries(ctx, view, settings)
	}

	e.publishStatus(view, settings, ready)
	if err := e.book.Save(); err != nil {
		e.logger.Error("Failed to save ledger: %v", err)
	}
}

// sweepPositions ведет открытые позиции: сначала фиксация прибыли,
// потом усреднение. Оба действия на одном проходе невозможны.
func (e *Engine) sweepPositions(ctx context.Context, view *marketView, settings config.Settings) {
	for _, sym := range e.book.Symbols() {
		pos := e.book.Position(sym)
		if pos == nil || !pos.Managed() {
			continue
		}
		if pos.NeedsAttention {
			e.logger.Debug("Skipping %s: needs operator attention", sym)
			continue
		}
		if e.book.HasPendingFor(sym) {
			continue
		}
		sig := e.signals.Snapshot(sym)

		sell, trailDecision := strategy.UpdateTrailing(pos, settings, view.sellPrice(sym))
		if sell {
			e.audit(sym, trailDecision.Action, trailDecision.Reason, sig, trailDecision.Details)
			e.executeSell(ctx, sym, domain.TagTrailSell, pos.Quantity, view)
			continue
		}

		// Причина бездействия пишется в журнал наравне со сделкой:
		// молчание по символу для оператора неотличимо от сбоя
		dca := strategy.EvaluateDCA(pos, sig, settings, view.buyPrice(sym), time.Now())
		if dca.Action != domain.ActionDCA {
			e.audit(sym, trailDecision.Action, trailDecision.Reason, sig, trailDecision.Details)
			e.audit(sym, dca.Action, dca.Reason, sig, dca.Details)
			continue
		}
		e.audit(sym, dca.Action, dca.Reason, sig, dca.Details)
		if view.account.BuyingPower < dca.SizeUSD {
			e.audit(sym, domain.ActionDCASkip,
				fmt.Sprintf("insufficient buying power: have $%.2f, need $%.2f", view.account.BuyingPower, dca.SizeUSD),
				sig, nil)
			continue
		}
		if trade := e.executeBuy(ctx, sym, domain.TagDCA, dca.SizeUSD, view); trade != nil {
			pos = e.book.EnsurePosition(sym)
			pos.DCAStage++
			e.book.NoteDCABuy(sym, time.Now())
			strategy.ResetTrailing(pos)
		}
	}
}

// sweepEntries ищет точки входа по монетам из настроек. Монета, купленная
// вне бота, в торговлю не берется, ее существующий остаток не трогается.
func (e *Engine) sweepEntries(ctx context.Context, view *marketView, settings config.Settings) {
	for _, sym := range settings.Coins {
		pos := e.book.Position(sym)
		if pos != nil && (pos.EntryDone || pos.NeedsAttention) {
			continue
		}
		if view.holdings[sym] > 0 && (pos == nil || !pos.Managed()) {
			e.logger.Debug("Skipping %s: pre-existing holding not managed by the bot", sym)
			continue
		}
		if e.book.HasPendingFor(sym) {
			continue
		}

		sig := e.signals.Snapshot(sym)
		decision := strategy.EvaluateEntry(sig, settings, view.account.TotalValue)
		if decision.Action != domain.ActionEntry {
			e.audit(sym, decision.Action, decision.Reason, sig, decision.Details)
			continue
		}
		e.audit(sym, decision.Action, decision.Reason, sig, decision.Details)
		if view.account.BuyingPower < decision.SizeUSD {
			e.audit(sym, domain.ActionSkip,
				fmt.Sprintf("insufficient buying power: have $%.2f, need $%.2f", view.account.BuyingPower, decision.SizeUSD),
				sig, nil)
			continue
		}
		if trade := e.executeBuy(ctx, sym, domain.TagEntry, decision.SizeUSD, view); trade != nil {
			pos = e.book.EnsurePosition(sym)
			pos.EntryDone = true
			pos.DCAStage = 0
			strategy.ResetTrailing(pos)
		}
	}
}

// processManualCommands разбирает команды оператора из файла и из очереди
// бота. Файловая команда удаляется только после того, как исход записан.
func (e *Engine) processManualCommands(ctx context.Context, view *marketView, settings config.Settings) {
	if cmd, err := e.hub.PeekManualCommand(); err != nil {
		e.logger.Warn("Manual command rejected: %v", err)
	} else if cmd != nil {
		e.runManualCommand(ctx, cmd, view)
		e.hub.DeleteManualCommand()
	}

	for _, cmd := range e.drainManualQueue() {
		e.runManualCommand(ctx, cmd, view)
	}
}

func (e *Engine) runManualCommand(ctx context.Context, cmd *domain.ManualCommand, view *marketView) {
	sig := e.signals.Snapshot(cmd.Symbol)
	e.logger.Info("Manual command: %s %s", cmd.Action, cmd.Symbol)

	if pos := e.book.Position(cmd.Symbol); pos != nil && pos.NeedsAttention {
		e.notify(fmt.Sprintf("⚠️ %s: %v\nUse /clear %s first.", cmd.Symbol, domain.ErrPositionQuarantined, cmd.Symbol))
		return
	}

	switch cmd.Action {
	case domain.ManualActionBuy:
		e.audit(cmd.Symbol, domain.ActionManual, fmt.Sprintf("operator buy for $%.2f", cmd.AmountUSD), sig, nil)
		if e.book.HasPendingFor(cmd.Symbol) {
			e.notify(fmt.Sprintf("⚠️ %s already has an order in flight, manual buy dropped", cmd.Symbol))
			return
		}
		if trade := e.executeBuy(ctx, cmd.Symbol, domain.TagManualBuy, cmd.AmountUSD, view); trade != nil {
			pos := e.book.EnsurePosition(cmd.Symbol)
			pos.EntryDone = true
			strategy.ResetTrailing(pos)
		}

	case domain.ManualActionSellAll:
		pos := e.book.Position(cmd.Symbol)
		if pos == nil || !pos.Managed() {
			e.notify(fmt.Sprintf("⚠️ No managed %s position to sell", cmd.Symbol))
			return
		}
		if e.book.HasPendingFor(cmd.Symbol) {
			e.notify(fmt.Sprintf("⚠️ %s already has an order in flight, manual sell dropped", cmd.Symbol))
			return
		}
		e.audit(cmd.Symbol, domain.ActionManual, "operator sell of the whole position", sig, nil)
		e.executeSell(ctx, cmd.Symbol, domain.TagManualSell, pos.Quantity, view)
	}
}

// executeBuy проводит покупку от размещения до записи в книгу.
// Неразрешимый исход блокирует символ до вмешательства оператора.
func (e *Engine) executeBuy(ctx context.Context, symbol, tag string, usdAmount float64, view *marketView) *domain.TradeRecord {
	bpBefore := view.account.BuyingPower

	rec, err := e.orders.SubmitBuy(ctx, symbol, tag, usdAmount)
	if err != nil {
		e.logger.Error("Buy %s failed at submit: %v", symbol, err)
		e.metrics.BrokerErrors.Inc()
		return nil
	}
	e.metrics.OrdersTotal.WithLabelValues(rec.Side, rec.Tag).Inc()

	order, err := e.orders.WaitForTerminal(ctx, rec)
	if err != nil {
		e.handleUnresolvedOrder(rec, err)
		return nil
	}

	bpAfter, bperr := e.broker.GetBuyingPower(ctx)
	if bperr != nil {
		e.logger.Warn("Failed to refresh buying power after buy: %v", bperr)
		bpAfter = bpBefore - rec.RequestedSize
	}
	view.account.BuyingPower = bpAfter

	trade, err := e.orders.ResolveFill(rec, order, bpBefore, bpAfter)
	if err != nil {
		e.logger.Error("Failed to record buy %s: %v", symbol, err)
		return nil
	}
	if trade == nil {
		e.notify(fmt.Sprintf("⚠️ Buy of %s ended %s without a fill", symbol, order.Status))
		return nil
	}
	e.afterTrade(trade)
	return trade
}

// executeSell проводит продажу от размещения до записи в книгу
func (e *Engine) executeSell(ctx context.Context, symbol, tag string, quantity float64, view *marketView) *domain.TradeRecord {
	bpBefore := view.account.BuyingPower

	rec, err := e.orders.SubmitSell(ctx, symbol, tag, quantity)
	if err != nil {
		e.logger.Error("Sell %s failed at submit: %v", symbol, err)
		e.metrics.BrokerErrors.Inc()
		return nil
	}
	e.metrics.OrdersTotal.WithLabelValues(rec.Side, rec.Tag).Inc()

	order, err := e.orders.WaitForTerminal(ctx, rec)
	if err != nil {
		e.handleUnresolvedOrder(rec, err)
		return nil
	}

	bpAfter, bperr := e.broker.GetBuyingPower(ctx)
	if bperr != nil {
		e.logger.Warn("Failed to refresh buying power after sell: %v", bperr)
		bpAfter = bpBefore + order.FilledQty*order.AvgPrice
	}
	view.account.BuyingPower = bpAfter

	trade, err := e.orders.ResolveFill(rec, order, bpBefore, bpAfter)
	if err != nil {
		e.logger.Error("Failed to record sell %s: %v", symbol, err)
		return nil
	}
	if trade == nil {
		e.notify(fmt.Sprintf("⚠️ Sell of %s ended %s without a fill", symbol, order.Status))
		return nil
	}
	e.afterTrade(trade)
	return trade
}

// handleUnresolvedOrder переводит символ в карантин: ордер завис, его
// судьба неизвестна, повторять нельзя
func (e *Engine) handleUnresolvedOrder(rec *domain.OrderRecord, err error) {
	e.metrics.BrokerErrors.Inc()
	reason := fmt.Sprintf("order %s unresolved: %v", rec.ClientID, err)
	if errors.Is(err, domain.ErrOrderStillPending) {
		reason = fmt.Sprintf("order %s still pending after %s", rec.ClientID, e.cfg.Engine.OrderMaxWait)
	}
	if ferr := e.book.FlagAttention(rec.Symbol, reason); ferr != nil {
		e.logger.Error("Failed to flag %s: %v", rec.Symbol, ferr)
	}
	e.notify(fmt.Sprintf("🛑 *%s* quarantined: %s\nUse /clear %s after resolving it manually.", rec.Symbol, reason, rec.Symbol))
}

func (e *Engine) afterTrade(trade *domain.TradeRecord) {
	if e.archive != nil {
		if err := e.archive.SaveTrade(trade); err != nil {
			e.logger.Warn("Failed to archive trade: %v", err)
		}
		if err := e.archive.SavePnLPoint(e.book.TotalRealized(), e.lastAccount.TotalValue); err != nil {
			e.logger.Warn("Failed to archive pnl point: %v", err)
		}
	}

	e.notify(telegram.FormatTrade(trade))
}
