package domain

// Trade sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order statuses
const (
	StatusSubmitted = "SUBMITTED"
	StatusPending   = "PENDING"
	StatusFilled    = "FILLED"
	StatusCancelled = "CANCELLED"
	StatusRejected  = "REJECTED"
	StatusExpired   = "EXPIRED"
	StatusFailed    = "FAILED"
)

// Order tags (идемпотентные метки логических решений)
const (
	TagEntry      = "ENTRY"
	TagDCA        = "DCA"
	TagTrailSell  = "TRAIL_SELL"
	TagManualBuy  = "MANUAL_BUY"
	TagManualSell = "MANUAL_SELL"
)

// Decision actions для журнала решений
const (
	ActionEntry     = "ENTRY"
	ActionSkip      = "SKIP"
	ActionDCA       = "DCA"
	ActionDCASkip   = "DCA_SKIP"
	ActionTrailSell = "TRAIL_SELL"
	ActionHold      = "HOLD"
	ActionManual    = "MANUAL"
)

// Trailing phases
const (
	TrailInactive = "INACTIVE"
	TrailArmed    = "ARMED"
	TrailTrailing = "TRAILING"
)

// Manual command actions
const (
	ManualActionBuy     = "buy"
	ManualActionSellAll = "sell_all"
)

// Coinbase constants
const (
	QuoteCurrency     = "USD"
	MinMarketOrderUSD = 1.0
)

// IsTerminalStatus сообщает, что ордер больше не изменит состояние
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// ProductID возвращает торговую пару биржи для базового символа
func ProductID(symbol string) string {
	return symbol + "-" + QuoteCurrency
}
