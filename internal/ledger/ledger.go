package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kirillm/powertrader/internal/domain"
	"github.com/kirillm/powertrader/internal/hub"
	"github.com/kirillm/powertrader/pkg/utils"
)

const (
	dustQty = 1e-12
	dustUSD = 1e-6
)

// Book — рабочая книга движка поверх pnl_ledger.json и trade_history.jsonl.
// Движок — единственный писатель этих файлов; после рестарта книга
// восстанавливается из них целиком. Мьютекс закрывает проводки от
// читающих вызовов телеграм-бота.
type Book struct {
	hub    *hub.Hub
	logger *utils.Logger
	now    func() time.Time

	mu    sync.Mutex
	state *domain.Ledger
}

// Load восстанавливает книгу из hub-каталога. Отсутствующий или битый
// файл книги дает пустую книгу, а не ошибку.
func Load(h *hub.Hub, logger *utils.Logger) *Book {
	state := domain.NewLedger()
	if h.ReadSnapshot(hub.LedgerFile, state) {
		logger.Info("Ledger loaded: %d position(s), %d pending order(s), realized $%.2f",
			len(state.Positions), len(state.PendingOrders), state.TotalRealizedProfitUSD)
	} else {
		logger.Info("No ledger on disk, starting with an empty book")
		state = domain.NewLedger()
	}

	if state.Positions == nil {
		state.Positions = make(map[string]*domain.Position)
	}
	if state.PendingOrders == nil {
		state.PendingOrders = make(map[string]*domain.OrderRecord)
	}
	if state.NextSeq < 1 {
		state.NextSeq = 1
	}

	b := &Book{hub: h, logger: logger, state: state, now: time.Now}
	b.sanitize()
	return b
}

// sanitize чистит мусор после рестарта: пустые позиции, окна DCA
func (b *Book) sanitize() {
	for sym, pos := range b.state.Positions {
		pos.Symbol = sym
		if pos.Quantity <= dustQty && pos.USDCost <= dustUSD {
			delete(b.state.Positions, sym)
			continue
		}
		if pos.Quantity > 0 {
			pos.CostBasis = pos.USDCost / pos.Quantity
		}
		pos.DCABuyTimes = pruneWindow(pos.DCABuyTimes, b.now().Add(-24*time.Hour))
	}
}

// Save атомарно записывает книгу на диск
func (b *Book) Save() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.save()
}

func (b *Book) save() error {
	b.state.LastUpdated = b.now()
	if err := b.hub.WriteSnapshot(hub.LedgerFile, b.state); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}

// Position возвращает позицию по символу или nil
func (b *Book) Position(symbol string) *domain.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Positions[symbol]
}

// EnsurePosition возвращает позицию, создавая пустую при необходимости
func (b *Book) EnsurePosition(symbol string) *domain.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ensurePosition(symbol)
}

func (b *Book) ensurePosition(symbol string) *domain.Position {
	pos, ok := b.state.Positions[symbol]
	if !ok {
		pos = &domain.Position{
			Symbol:   symbol,
			Trailing: domain.TrailingState{Phase: domain.TrailInactive},
		}
		b.state.Positions[symbol] = pos
	}
	return pos
}

// Symbols возвращает отсортированный список символов с позициями
func (b *Book) Symbols() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.state.Positions))
	for sym := range b.state.Positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// TotalRealized возвращает накопленную реализованную прибыль
func (b *Book) TotalRealized() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.TotalRealizedProfitUSD
}

// UnrealizedPnL оценивает плавающий результат управляемых позиций по
// ценам из priceOf. Нулевая цена исключает символ из оценки.
func (b *Book) UnrealizedPnL(priceOf func(symbol string) float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	var total float64
	for sym, pos := range b.state.Positions {
		if !pos.Managed() {
			continue
		}
		if price := priceOf(sym); price > 0 {
			total += pos.Quantity*price - pos.USDCost
		}
	}
	return total
}

// NextSeq выдает следующий номер попытки ордера. Номер монотонный и
// долговечный: счетчик сохраняется вместе с книгой.
func (b *Book) NextSeq() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	seq := b.state.NextSeq
	b.state.NextSeq++
	return seq
}

// AddPending записывает незавершенный ордер и сразу сохраняет книгу —
// рестарт между размещением и исполнением не должен потерять ордер
func (b *Book) AddPending(rec *domain.OrderRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.PendingOrders[rec.ClientID] = rec
	return b.save()
}

// RemovePending убирает ордер из незавершенных без прочих изменений
func (b *Book) RemovePending(clientID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.state.PendingOrders, clientID)
	return b.save()
}

// PendingOrders возвращает незавершенные ордера в порядке возрастания seq
func (b *Book) PendingOrders() []*domain.OrderRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*domain.OrderRecord, 0, len(b.state.PendingOrders))
	for _, rec := range b.state.PendingOrders {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// HasPendingFor сообщает, есть ли по символу ордер в полете.
// Больше одного одновременного ордера на символ книга не допускает.
func (b *Book) HasPendingFor(symbol string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range b.state.PendingOrders {
		if rec.Symbol == symbol {
			return true
		}
	}
	return false
}

// FillParams — параметры исполнения, известные движку в момент записи сделки
type FillParams struct {
	Quantity float64
	Price    float64
	FeesUSD  float64
	BPBefore float64
	BPAfter  float64
}

// RecordBuy фиксирует исполненную покупку: обновляет позицию по дельте
// покупательной способности и дописывает историю сделок.
// Дельта надежнее оценки qty*price: она учитывает комиссии и частичное
// исполнение. Если брокер еще не рассчитался (дельта около нуля),
// используется запрошенная сумма ордера.
func (b *Book) RecordBuy(rec *domain.OrderRecord, fill FillParams) (*domain.TradeRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos := b.ensurePosition(rec.Symbol)

	bpDelta := fill.BPAfter - fill.BPBefore
	if bpDelta > -0.01 {
		bpDelta = -rec.RequestedSize
	}
	usdUsed := -bpDelta
	if usdUsed < 0 {
		usdUsed = 0
	}

	pos.USDCost += usdUsed
	if fill.Quantity > 0 {
		pos.Quantity += fill.Quantity
	}
	if pos.Quantity > 0 {
		pos.CostBasis = pos.USDCost / pos.Quantity
	}
	pos.LastBuyUSD = usdUsed
	// Проведенная покупка означает состоявшийся вход: восстановленный
	// после рестарта ордер не должен открыть позицию второй раз
	pos.EntryDone = true
	pos.UpdatedAt = b.now()

	trade := &domain.TradeRecord{
		Timestamp:         b.now(),
		Symbol:            rec.Symbol,
		Side:              domain.SideBuy,
		Tag:               rec.Tag,
		Quantity:          fill.Quantity,
		Price:             fill.Price,
		FeesUSD:           fill.FeesUSD,
		AvgCostBasis:      pos.CostBasis,
		OrderID:           rec.BrokerOrderID,
		BPBefore:          fill.BPBefore,
		BPAfter:           fill.BPAfter,
		BPDelta:           bpDelta,
		PositionCostAfter: pos.USDCost,
	}

	delete(b.state.PendingOrders, rec.ClientID)
	if err := b.appendTrade(trade); err != nil {
		return trade, err
	}
	return trade, b.save()
}

// RecordSell фиксирует исполненную продажу. Себестоимость списывается
// пропорционально проданной доле, остаток прибыли идет в накопленный итог.
func (b *Book) RecordSell(rec *domain.OrderRecord, fill FillParams) (*domain.TradeRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos := b.ensurePosition(rec.Symbol)

	bpDelta := fill.BPAfter - fill.BPBefore
	if bpDelta < 0.01 && fill.Price > 0 {
		bpDelta = fill.Quantity * fill.Price
	}
	usdGot := bpDelta
	if usdGot < 0 {
		usdGot = 0
	}

	frac := 1.0
	if pos.Quantity > 0 && fill.Quantity > 0 {
		frac = fill.Quantity / pos.Quantity
		if frac > 1 {
			frac = 1
		}
	}
	costUsed := pos.USDCost * frac
	realized := usdGot - costUsed
	costBasisBefore := pos.CostBasis

	pnlPct := 0.0
	if costBasisBefore > 0 && fill.Price > 0 {
		pnlPct = (fill.Price - costBasisBefore) / costBasisBefore * 100
	}

	pos.USDCost -= costUsed
	pos.Quantity -= fill.Quantity
	if pos.Quantity > 0 {
		pos.CostBasis = pos.USDCost / pos.Quantity
	}
	pos.UpdatedAt = b.now()

	b.state.TotalRealizedProfitUSD += realized

	trade := &domain.TradeRecord{
		Timestamp:         b.now(),
		Symbol:            rec.Symbol,
		Side:              domain.SideSell,
		Tag:               rec.Tag,
		Quantity:          fill.Quantity,
		Price:             fill.Price,
		FeesUSD:           fill.FeesUSD,
		AvgCostBasis:      costBasisBefore,
		PnLPct:            pnlPct,
		RealizedProfitUSD: &realized,
		OrderID:           rec.BrokerOrderID,
		BPBefore:          fill.BPBefore,
		BPAfter:           fill.BPAfter,
		BPDelta:           bpDelta,
		PositionCostUsed:  costUsed,
		PositionCostAfter: pos.USDCost,
	}

	// Пыль после полной продажи нарушает инвариант qty==0 <=> cost==0
	if pos.Quantity <= dustQty || pos.USDCost <= dustUSD {
		delete(b.state.Positions, rec.Symbol)
	}

	delete(b.state.PendingOrders, rec.ClientID)
	if err := b.appendTrade(trade); err != nil {
		return trade, err
	}
	return trade, b.save()
}

// FlagAttention помечает позицию для ручного вмешательства оператора.
// До снятия флага автоматика по символу не работает.
func (b *Book) FlagAttention(symbol, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos := b.ensurePosition(symbol)
	pos.NeedsAttention = true
	pos.AttentionReason = reason
	pos.UpdatedAt = b.now()
	b.logger.Error("Symbol %s flagged for operator attention: %s", symbol, reason)
	return b.save()
}

// ClearAttention снимает операторский флаг с символа
func (b *Book) ClearAttention(symbol string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos := b.state.Positions[symbol]
	if pos == nil {
		return fmt.Errorf("%w: position %s", domain.ErrNotFound, symbol)
	}
	if !pos.NeedsAttention {
		return nil
	}
	pos.NeedsAttention = false
	pos.AttentionReason = ""
	pos.UpdatedAt = b.now()
	// Застрявшие ордера символа оператор уже разобрал руками
	for cid, rec := range b.state.PendingOrders {
		if rec.Symbol == symbol {
			delete(b.state.PendingOrders, cid)
		}
	}
	b.logger.Info("Attention flag cleared for %s", symbol)
	return b.save()
}

// NoteDCABuy добавляет отметку времени DCA-покупки в скользящее окно
func (b *Book) NoteDCABuy(symbol string, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos := b.ensurePosition(symbol)
	pos.DCABuyTimes = append(pruneWindow(pos.DCABuyTimes, ts.Add(-24*time.Hour)), ts)
}

func (b *Book) appendTrade(trade *domain.TradeRecord) error {
	if err := b.hub.AppendLog(hub.TradeHistoryFile, trade); err != nil {
		return fmt.Errorf("failed to append trade history: %w", err)
	}
	return nil
}

// pruneWindow отбрасывает отметки старше границы окна
func pruneWindow(times []time.Time, cutoff time.Time) []time.Time {
	var kept []time.Time
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
