package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirillm/powertrader/internal/broker"
	"github.com/kirillm/powertrader/internal/domain"
	"github.com/kirillm/powertrader/internal/ledger"
	"github.com/kirillm/powertrader/pkg/utils"
)

// Manager проводит ордера через брокера и следит за их жизненным циклом.
// Вся долговечность делегирована книге: каждый незавершенный ордер
// попадает в pending до того, как менеджер начнет его ждать.
type Manager struct {
	broker       broker.Broker
	book         *ledger.Book
	logger       *utils.Logger
	pollInterval time.Duration
	maxWait      time.Duration
}

// NewManager создает менеджер ордеров
func NewManager(b broker.Broker, book *ledger.Book, logger *utils.Logger, pollInterval, maxWait time.Duration) *Manager {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}
	return &Manager{
		broker:       b,
		book:         book,
		logger:       logger,
		pollInterval: pollInterval,
		maxWait:      maxWait,
	}
}

// clientID строит детерминированный идентификатор попытки. Повторная
// отправка того же ID брокер трактует как ту же попытку, поэтому
// дубликат после сбоя невозможен.
func clientID(tag, symbol string, seq int64) string {
	return fmt.Sprintf("%s-%s-%d", tag, symbol, seq)
}

// SubmitBuy размещает рыночную покупку на usdAmount долларов.
// Запись ордера сохраняется в книге сразу после принятия брокером.
func (m *Manager) SubmitBuy(ctx context.Context, symbol, tag string, usdAmount float64) (*domain.OrderRecord, error) {
	if usdAmount < domain.MinMarketOrderUSD {
		return nil, fmt.Errorf("buy %s for $%.2f: below minimum order size", symbol, usdAmount)
	}
	if m.book.HasPendingFor(symbol) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderInFlight, symbol)
	}

	seq := m.book.NextSeq()
	cid := clientID(tag, symbol, seq)
	m.logger.Info("Submitting BUY %s $%.2f (client_id=%s)", symbol, usdAmount, cid)

	orderID, err := m.broker.PlaceBuy(ctx, domain.ProductID(symbol), usdAmount, cid)
	if err != nil {
		return nil, fmt.Errorf("failed to place buy %s: %w", symbol, err)
	}

	rec := &domain.OrderRecord{
		ClientID:      cid,
		Tag:           tag,
		Symbol:        symbol,
		Side:          domain.SideBuy,
		RequestedSize: usdAmount,
		BrokerOrderID: orderID,
		Status:        domain.StatusSubmitted,
		Seq:           seq,
		SubmittedAt:   time.Now(),
	}
	if err := m.book.AddPending(rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// SubmitSell размещает рыночную продажу quantity базовой валюты
func (m *Manager) SubmitSell(ctx context.Context, symbol, tag string, quantity float64) (*domain.OrderRecord, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("sell %s: quantity must be positive", symbol)
	}
	if m.book.HasPendingFor(symbol) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderInFlight, symbol)
	}

	seq := m.book.NextSeq()
	cid := clientID(tag, symbol, seq)
	m.logger.Info("Submitting SELL %s qty=%.8f (client_id=%s)", symbol, quantity, cid)

	orderID, err := m.broker.PlaceSell(ctx, domain.ProductID(symbol), quantity, cid)
	if err != nil {
		return nil, fmt.Errorf("failed to place sell %s: %w", symbol, err)
	}

	rec := &domain.OrderRecord{
		ClientID:      cid,
		Tag:           tag,
		Symbol:        symbol,
		Side:          domain.SideSell,
		RequestedSize: quantity,
		BrokerOrderID: orderID,
		Status:        domain.StatusSubmitted,
		Seq:           seq,
		SubmittedAt:   time.Now(),
	}
	if err := m.book.AddPending(rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// WaitForTerminal опрашивает брокера до терминального статуса ордера.
// Каждый опрос ограничен по времени; таймаут одного опроса не считается
// концом ожидания. По исчерпании maxWait возвращается ErrOrderStillPending
// с последним известным состоянием.
func (m *Manager) WaitForTerminal(ctx context.Context, rec *domain.OrderRecord) (*broker.Order, error) {
	deadline := time.Now().Add(m.maxWait)
	var last *broker.Order

	for {
		order, err := m.broker.GetOrder(ctx, rec.BrokerOrderID)
		switch {
		case err == nil:
			last = order
			rec.Status = order.Status
			if domain.IsTerminalStatus(order.Status) {
				m.logger.Info("Order %s reached %s (filled=%.8f avg=%.4f)",
					rec.ClientID, order.Status, order.FilledQty, order.AvgPrice)
				return order, nil
			}
		case errors.Is(err, domain.ErrBrokerTimeout):
			m.logger.Warn("Order %s status poll timed out, will retry", rec.ClientID)
		default:
			m.logger.Warn("Order %s status poll failed: %v", rec.ClientID, err)
		}

		if time.Now().After(deadline) {
			return last, fmt.Errorf("%w: %s", domain.ErrOrderStillPending, rec.ClientID)
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
}

// ResolveFill переводит терминальный ордер в сделку книги
func (m *Manager) ResolveFill(rec *domain.OrderRecord, order *broker.Order, bpBefore, bpAfter float64) (*domain.TradeRecord, error) {
	if order.Status != domain.StatusFilled {
		// Отклоненный или отмененный ордер не трогает позицию
		m.logger.Warn("Order %s ended %s without a fill", rec.ClientID, order.Status)
		return nil, m.book.RemovePending(rec.ClientID)
	}
	fill := ledger.FillParams{
		Quantity: order.FilledQty,
		Price:    order.AvgPrice,
		FeesUSD:  order.FeesUSD,
		BPBefore: bpBefore,
		BPAfter:  bpAfter,
	}
	if rec.Side == domain.SideBuy {
		return m.book.RecordBuy(rec, fill)
	}
	return m.book.RecordSell(rec, fill)
}

// ReconcileOnStartup разбирает ордера, зависшие с прошлого запуска.
// Каждый pending опрашивается один раз: терминальный проводится в книгу,
// неопределенный помечает символ для оператора. Повторная отправка
// здесь запрещена, чтобы сбой не превратился в двойную покупку.
func (m *Manager) ReconcileOnStartup(ctx context.Context) error {
	pending := m.book.PendingOrders()
	if len(pending) == 0 {
		return nil
	}
	m.logger.Info("Reconciling %d pending order(s) from previous run", len(pending))

	for _, rec := range pending {
		order, err := m.broker.GetOrder(ctx, rec.BrokerOrderID)
		if err != nil {
			reason := fmt.Sprintf("order %s unresolved after restart: %v", rec.ClientID, err)
			if ferr := m.book.FlagAttention(rec.Symbol, reason); ferr != nil {
				return ferr
			}
			continue
		}
		if !domain.IsTerminalStatus(order.Status) {
			order, err = m.WaitForTerminal(ctx, rec)
			if err != nil {
				reason := fmt.Sprintf("order %s still pending after restart", rec.ClientID)
				if ferr := m.book.FlagAttention(rec.Symbol, reason); ferr != nil {
					return ferr
				}
				continue
			}
		}
		// Покупательная способность на момент ордера утрачена, сделка
		// проводится по сумме исполнения
		if _, err := m.ResolveFill(rec, order, 0, orderNotional(order, rec)); err != nil {
			return err
		}
		m.logger.Info("Recovered order %s: %s", rec.ClientID, order.Status)
	}
	return nil
}

// orderNotional оценивает денежный объем исполнения для восстановления
func orderNotional(order *broker.Order, rec *domain.OrderRecord) float64 {
	if order.Status != domain.StatusFilled {
		return 0
	}
	notional := order.FilledQty * order.AvgPrice
	if rec.Side == domain.SideBuy {
		return -notional
	}
	return notional
}
