package telegram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillm/powertrader/internal/domain"
)

// FormatStatus форматирует сводку аккаунта для оператора
func FormatStatus(s *domain.StatusSnapshot) string {
	var b strings.Builder
	b.WriteString("📊 *Trader Status*\n\n")
	if s.Paused {
		b.WriteString("⏸ Trading is *paused*\n")
	} else if !s.Ready {
		b.WriteString("⏳ Waiting for signals to become ready\n")
	} else {
		b.WriteString("🚀 Trading is active\n")
	}
	b.WriteString(fmt.Sprintf("\n💰 Account Value: $%.2f\n", s.Account.TotalValue))
	b.WriteString(fmt.Sprintf("💵 Buying Power: $%.2f\n", s.Account.BuyingPower))
	b.WriteString(fmt.Sprintf("📈 In Trade: %.1f%%\n", s.Account.PercentInTrade))
	b.WriteString(fmt.Sprintf("🕐 Updated: %s\n", s.Timestamp.Format("2006-01-02 15:04:05")))
	return b.String()
}

// FormatPositions форматирует список открытых позиций
func FormatPositions(s *domain.StatusSnapshot) string {
	if len(s.Positions) == 0 {
		return "📭 No open positions"
	}

	symbols := make([]string, 0, len(s.Positions))
	for sym := range s.Positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var b strings.Builder
	b.WriteString("📋 *Open Positions*\n")
	for _, sym := range symbols {
		pos := s.Positions[sym]
		b.WriteString(fmt.Sprintf("\n*%s*\n", sym))
		b.WriteString(fmt.Sprintf("  Qty: %.8f @ $%.4f\n", pos.Quantity, pos.AvgCostBasis))
		b.WriteString(fmt.Sprintf("  Value: $%.2f (%s%.2f%%)\n", pos.ValueUSD, plusSign(pos.PnLPctSell), pos.PnLPctSell))
		if pos.DCAStage > 0 {
			b.WriteString(fmt.Sprintf("  DCA stage: %d\n", pos.DCAStage))
		}
		if pos.TrailPhase != domain.TrailInactive {
			b.WriteString(fmt.Sprintf("  Trailing: %s, line $%.4f\n", pos.TrailPhase, pos.TrailLine))
		}
		if pos.NeedsAttention {
			b.WriteString(fmt.Sprintf("  ⚠️ Needs attention: %s\n", pos.LastReason))
		}
	}
	return b.String()
}

// FormatPnL форматирует сводку прибыли
func FormatPnL(totalRealized, unrealized float64) string {
	var b strings.Builder
	b.WriteString("💰 *P&L Summary*\n\n")
	b.WriteString(fmt.Sprintf("Realized: %s$%.2f\n", plusSign(totalRealized), totalRealized))
	b.WriteString(fmt.Sprintf("Unrealized: %s$%.2f\n", plusSign(unrealized), unrealized))
	b.WriteString(fmt.Sprintf("Total: %s$%.2f\n", plusSign(totalRealized+unrealized), totalRealized+unrealized))
	return b.String()
}

// FormatTrade форматирует уведомление об исполненной сделке
func FormatTrade(t *domain.TradeRecord) string {
	emoji := "🟢"
	verb := "Bought"
	if t.Side == domain.SideSell {
		emoji = "🔴"
		verb = "Sold"
	}
	msg := fmt.Sprintf("%s %s *%s*: %.8f @ $%.4f (%s)", emoji, verb, t.Symbol, t.Quantity, t.Price, strings.ToLower(t.Tag))
	if t.RealizedProfitUSD != nil {
		msg += fmt.Sprintf("\n✅ Realized: %s$%.2f (%s%.2f%%)",
			plusSign(*t.RealizedProfitUSD), *t.RealizedProfitUSD, plusSign(t.PnLPct), t.PnLPct)
	}
	return msg
}

// FormatHelp возвращает справку по командам
func FormatHelp() string {
	return `🤖 *PowerTrader Commands*

/status — account summary
/positions — open positions
/pnl — realized and unrealized profit
/pause — pause trading (positions kept)
/resume — resume trading
/buy SYMBOL USD — manual market buy
/sell SYMBOL — sell the whole position
/clear SYMBOL — clear the attention flag
/help — this message`
}

func plusSign(v float64) string {
	if v >= 0 {
		return "+"
	}
	return ""
}
