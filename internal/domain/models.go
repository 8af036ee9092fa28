package domain

import "time"

// TrailingState представляет состояние трейлинг-выхода для одной позиции
type TrailingState struct {
	Phase       string  `json:"phase"` // INACTIVE, ARMED, TRAILING
	Line        float64 `json:"line"`
	Peak        float64 `json:"peak"`
	WasAbove    bool    `json:"was_above"`
	SettingsSig string  `json:"settings_sig"`
}

// Position представляет управляемую ботом позицию по одному активу.
// CostBasis == 0 при Quantity > 0 означает чужую (не ботовскую) позицию:
// она учитывается в стоимости счета, но никогда не торгуется.
type Position struct {
	Symbol          string        `json:"symbol"`
	Quantity        float64       `json:"quantity"`
	USDCost         float64       `json:"usd_cost"`
	CostBasis       float64       `json:"cost_basis"`
	EntryDone       bool          `json:"entry_done"`
	DCAStage        int           `json:"dca_stage"`
	LastBuyUSD      float64       `json:"last_buy_usd"`
	DCABuyTimes     []time.Time   `json:"dca_buy_times"`
	Trailing        TrailingState `json:"trailing"`
	NeedsAttention  bool          `json:"needs_attention"`
	AttentionReason string        `json:"attention_reason,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// OrderRecord представляет одну попытку размещения ордера.
// ClientID = "<TAG>-<SYMBOL>-<seq>" — идемпотентный ключ попытки.
type OrderRecord struct {
	ClientID      string    `json:"client_id"`
	Tag           string    `json:"tag"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	RequestedSize float64   `json:"requested_size"` // USD для покупки, количество для продажи
	BrokerOrderID string    `json:"broker_order_id,omitempty"`
	Status        string    `json:"status"`
	Seq           int64     `json:"seq"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// Ledger — долговременная книга движка: позиции, незавершенные ордера,
// накопленная реализованная прибыль и счетчик попыток.
type Ledger struct {
	TotalRealizedProfitUSD float64                 `json:"total_realized_profit_usd"`
	LastUpdated            time.Time               `json:"last_updated"`
	Positions              map[string]*Position    `json:"positions"`
	PendingOrders          map[string]*OrderRecord `json:"pending_orders"`
	NextSeq                int64                   `json:"next_seq"`
}

// TradeRecord представляет одну завершенную сделку в истории торговли
type TradeRecord struct {
	Timestamp         time.Time `json:"ts"`
	Symbol            string    `json:"symbol"`
	Side              string    `json:"side"`
	Tag               string    `json:"tag"`
	Quantity          float64   `json:"qty"`
	Price             float64   `json:"price"`
	FeesUSD           float64   `json:"fees_usd"`
	AvgCostBasis      float64   `json:"avg_cost_basis"`
	PnLPct            float64   `json:"pnl_pct"`
	RealizedProfitUSD *float64  `json:"realized_profit_usd,omitempty"`
	OrderID           string    `json:"order_id"`
	BPBefore          float64   `json:"buying_power_before"`
	BPAfter           float64   `json:"buying_power_after"`
	BPDelta           float64   `json:"buying_power_delta"`
	PositionCostUsed  float64   `json:"position_cost_used_usd,omitempty"`
	PositionCostAfter float64   `json:"position_cost_after_usd,omitempty"`
}

// Decision представляет одну запись в журнале решений
type Decision struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"ts"`
	Symbol     string                 `json:"symbol"`
	Action     string                 `json:"action"`
	LongLevel  int                    `json:"long_level"`
	ShortLevel int                    `json:"short_level"`
	Reason     string                 `json:"reason"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// SignalSnapshot — опубликованный генератором сигналов снимок по одному активу.
// PredictedLows/PredictedHighs упорядочены от высшего уровня к низшему (N1..N7).
type SignalSnapshot struct {
	Symbol         string    `json:"symbol"`
	LongLevel      int       `json:"long_level"`
	ShortLevel     int       `json:"short_level"`
	PredictedLows  []float64 `json:"predicted_lows"`
	PredictedHighs []float64 `json:"predicted_highs"`
	GeneratedAt    time.Time `json:"generated_at"`
	Stale          bool      `json:"-"`
}

// ManualCommand — разовая команда оператора из дашборда
type ManualCommand struct {
	Action    string  `json:"action"` // "buy" или "sell_all"
	Symbol    string  `json:"symbol"`
	AmountUSD float64 `json:"amount_usd,omitempty"`
}

// AccountSnapshot представляет полный снимок стоимости счета за один проход
type AccountSnapshot struct {
	TotalValue        float64 `json:"total_account_value"`
	BuyingPower       float64 `json:"buying_power"`
	HoldingsSellValue float64 `json:"holdings_sell_value"`
	HoldingsBuyValue  float64 `json:"holdings_buy_value"`
	PercentInTrade    float64 `json:"percent_in_trade"`
}

// PositionStatus — блок позиции в trader_status.json для дашборда
type PositionStatus struct {
	Quantity       float64 `json:"quantity"`
	AvgCostBasis   float64 `json:"avg_cost_basis"`
	BuyPrice       float64 `json:"current_buy_price"`
	SellPrice      float64 `json:"current_sell_price"`
	PnLPctBuy      float64 `json:"gain_loss_pct_buy"`
	PnLPctSell     float64 `json:"gain_loss_pct_sell"`
	ValueUSD       float64 `json:"value_usd"`
	DCAStage       int     `json:"dca_stage"`
	NextDCALine    float64 `json:"dca_line_price"`
	NextDCASource  string  `json:"dca_line_source"`
	TrailPhase     string  `json:"trail_phase"`
	TrailLine      float64 `json:"trail_line"`
	TrailPeak      float64 `json:"trail_peak"`
	NeedsAttention bool    `json:"needs_attention"`
	LastReason     string  `json:"last_reason,omitempty"`
}

// StatusSnapshot — операторский статус движка, перезаписывается каждый проход
type StatusSnapshot struct {
	Timestamp time.Time                 `json:"timestamp"`
	Paused    bool                      `json:"paused"`
	Ready     bool                      `json:"signals_ready"`
	Account   AccountStatus             `json:"account"`
	Positions map[string]PositionStatus `json:"positions"`
}

// AccountStatus — блок счета внутри StatusSnapshot
type AccountStatus struct {
	AccountSnapshot
	PMStartPctNoDCA   float64 `json:"pm_start_pct_no_dca"`
	PMStartPctWithDCA float64 `json:"pm_start_pct_with_dca"`
	TrailingGapPct    float64 `json:"trailing_gap_pct"`
}

// NewLedger создает пустую книгу
func NewLedger() *Ledger {
	return &Ledger{
		Positions:     make(map[string]*Position),
		PendingOrders: make(map[string]*OrderRecord),
		NextSeq:       1,
		LastUpdated:   time.Now(),
	}
}

// Managed сообщает, управляется ли позиция ботом
func (p *Position) Managed() bool {
	return p.Quantity > 0 && p.CostBasis > 0
}
