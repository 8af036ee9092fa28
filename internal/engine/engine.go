package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillm/powertrader/internal/broker"
	"github.com/kirillm/powertrader/internal/config"
	"github.com/kirillm/powertrader/internal/domain"
	"github.com/kirillm/powertrader/internal/hub"
	"github.com/kirillm/powertrader/internal/ledger"
	"github.com/kirillm/powertrader/internal/metrics"
	"github.com/kirillm/powertrader/internal/orders"
	"github.com/kirillm/powertrader/internal/signals"
	"github.com/kirillm/powertrader/internal/storage"
	"github.com/kirillm/powertrader/pkg/utils"
)

// Notifier получает операторские уведомления о сделках и сбоях
type Notifier interface {
	SendMessage(text string)
}

// Engine — однопоточный торговый цикл. Все торговые решения и вся запись
// hub-файлов происходят внутри одного прохода, поэтому гонок за состояние
// книги нет; снаружи по мьютексу видны только пауза, очередь ручных
// команд и последний статус.
type Engine struct {
	cfg      *config.Config
	settings *config.SettingsLoader
	hub      *hub.Hub
	signals  *signals.Reader
	broker   broker.Broker
	book     *ledger.Book
	orders   *orders.Manager
	metrics  *metrics.Metrics
	archive  *storage.PostgresArchive
	notifier Notifier
	logger   *utils.Logger

	lastQuotes   map[string]broker.Quote
	lastHoldings map[string]float64
	lastAccount  domain.AccountSnapshot
	lastReasons  map[string]string

	mu          sync.Mutex
	paused      bool
	manualQueue []*domain.ManualCommand
	lastStatus  *domain.StatusSnapshot
}

// New собирает движок. archive и notifier могут быть nil.
func New(
	cfg *config.Config,
	settings *config.SettingsLoader,
	h *hub.Hub,
	sig *signals.Reader,
	b broker.Broker,
	book *ledger.Book,
	om *orders.Manager,
	m *metrics.Metrics,
	archive *storage.PostgresArchive,
	logger *utils.Logger,
) *Engine {
	return &Engine{
		cfg:          cfg,
		settings:     settings,
		hub:          h,
		signals:      sig,
		broker:       b,
		book:         book,
		orders:       om,
		metrics:      m,
		archive:      archive,
		logger:       logger,
		lastQuotes:   make(map[string]broker.Quote),
		lastHoldings: make(map[string]float64),
		lastReasons:  make(map[string]string),
	}
}

// SetNotifier подключает операторские уведомления
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// Run крутит проходы до отмены контекста
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Engine started, sweep interval %s", e.cfg.Engine.SweepInterval)
	ticker := time.NewTicker(e.cfg.Engine.SweepInterval)
	defer ticker.Stop()

	e.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine stopping: %v", ctx.Err())
			if err := e.book.Save(); err != nil {
				e.logger.Error("Failed to save ledger on shutdown: %v", err)
			}
			return nil
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Status возвращает последний опубликованный статус
func (e *Engine) Status() *domain.StatusSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastStatus == nil {
		return &domain.StatusSnapshot{
			Timestamp: time.Now(),
			Paused:    e.paused,
			Positions: make(map[string]domain.PositionStatus),
		}
	}
	return e.lastStatus
}

// PnL возвращает реализованную и нереализованную прибыль.
// Нереализованная считается по ценам последнего опубликованного статуса,
// поэтому вызов безопасен из горутин телеграм-бота.
func (e *Engine) PnL() (float64, float64) {
	e.mu.Lock()
	status := e.lastStatus
	e.mu.Unlock()

	realized := e.book.TotalRealized()
	if status == nil {
		return realized, 0
	}
	unrealized := e.book.UnrealizedPnL(func(symbol string) float64 {
		return status.Positions[symbol].SellPrice
	})
	return realized, unrealized
}

// Pause останавливает новые ордера. Трейлинг и докупки замирают,
// позиции остаются как есть.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	e.logger.Info("Trading paused by operator")
}

// Resume возобновляет торговлю
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	e.logger.Info("Trading resumed by operator")
}

func (e *Engine) isPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// ClearAttention снимает операторский флаг с символа
func (e *Engine) ClearAttention(symbol string) error {
	return e.book.ClearAttention(symbol)
}

// EnqueueManual ставит ручную команду в очередь следующего прохода
func (e *Engine) EnqueueManual(cmd *domain.ManualCommand) error {
	if cmd.Action != domain.ManualActionBuy && cmd.Action != domain.ManualActionSellAll {
		return fmt.Errorf("%w: action %q", domain.ErrInvalidCommand, cmd.Action)
	}
	if cmd.Action == domain.ManualActionBuy && cmd.AmountUSD < domain.MinMarketOrderUSD {
		return fmt.Errorf("%w: amount $%.2f below minimum", domain.ErrInvalidCommand, cmd.AmountUSD)
	}
	e.mu.Lock()
	e.manualQueue = append(e.manualQueue, cmd)
	e.mu.Unlock()
	return nil
}

func (e *Engine) drainManualQueue() []*domain.ManualCommand {
	e.mu.Lock()
	defer e.mu.Unlock()
	queued := e.manualQueue
	e.manualQueue = nil
	return queued
}

// audit записывает решение в журнал, метрики и архив
func (e *Engine) audit(symbol, action, reason string, sig domain.SignalSnapshot, details map[string]interface{}) {
	d := &domain.Decision{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Symbol:     symbol,
		Action:     action,
		LongLevel:  sig.LongLevel,
		ShortLevel: sig.ShortLevel,
		Reason:     reason,
		Details:    details,
	}
	if err := e.hub.AppendLog(hub.DecisionLogFile, d); err != nil {
		e.logger.Error("Failed to append decision log: %v", err)
	}
	if symbol != "" {
		e.lastReasons[symbol] = reason
	}
	e.metrics.DecisionsTotal.WithLabelValues(action).Inc()
	if e.archive != nil {
		if err := e.archive.SaveDecision(d); err != nil {
			e.logger.Warn("Failed to archive decision: %v", err)
		}
	}
}

func (e *Engine) notify(text string) {
	if e.notifier != nil {
		e.notifier.SendMessage(text)
	}
}
