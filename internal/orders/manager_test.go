package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kirillm/powertrader/internal/broker"
	"github.com/kirillm/powertrader/internal/domain"
	"github.com/kirillm/powertrader/internal/hub"
	"github.com/kirillm/powertrader/internal/ledger"
	"github.com/kirillm/powertrader/pkg/utils"
)

// scriptedBroker отдает заранее заданные статусы ордера по порядку
type scriptedBroker struct {
	mu         sync.Mutex
	statuses   []string
	statusIdx  int
	orderErr   error
	placeCalls int
}

func (s *scriptedBroker) GetPrices(ctx context.Context, products []string) (map[string]broker.Quote, error) {
	return nil, nil
}

func (s *scriptedBroker) GetHoldings(ctx context.Context) ([]broker.Holding, error) {
	return nil, nil
}

func (s *scriptedBroker) GetBuyingPower(ctx context.Context) (float64, error) {
	return 1000, nil
}

func (s *scriptedBroker) PlaceBuy(ctx context.Context, product string, usdAmount float64, clientID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeCalls++
	return fmt.Sprintf("broker-%d", s.placeCalls), nil
}

func (s *scriptedBroker) PlaceSell(ctx context.Context, product string, quantity float64, clientID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeCalls++
	return fmt.Sprintf("broker-%d", s.placeCalls), nil
}

func (s *scriptedBroker) GetOrder(ctx context.Context, orderID string) (*broker.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orderErr != nil {
		return nil, s.orderErr
	}
	status := s.statuses[len(s.statuses)-1]
	if s.statusIdx < len(s.statuses) {
		status = s.statuses[s.statusIdx]
		s.statusIdx++
	}
	return &broker.Order{ID: orderID, Status: status, FilledQty: 0.001, AvgPrice: 100000}, nil
}

func newTestManager(t *testing.T, b broker.Broker) (*Manager, *ledger.Book) {
	t.Helper()
	h, err := hub.New(t.TempDir(), utils.NewLogger("error"))
	if err != nil {
		t.Fatal(err)
	}
	book := ledger.Load(h, utils.NewLogger("error"))
	m := NewManager(b, book, utils.NewLogger("error"), 5*time.Millisecond, 50*time.Millisecond)
	return m, book
}

func TestSubmitBuy_RefusesSecondOrderForSymbol(t *testing.T) {
	m, _ := newTestManager(t, &scriptedBroker{statuses: []string{domain.StatusPending}})

	if _, err := m.SubmitBuy(context.Background(), "BTC", domain.TagEntry, 100); err != nil {
		t.Fatalf("first SubmitBuy() error = %v", err)
	}
	_, err := m.SubmitBuy(context.Background(), "BTC", domain.TagDCA, 100)
	if !errors.Is(err, domain.ErrOrderInFlight) {
		t.Errorf("second SubmitBuy() error = %v, want ErrOrderInFlight", err)
	}

	// Другой символ не блокируется
	if _, err := m.SubmitBuy(context.Background(), "ETH", domain.TagEntry, 100); err != nil {
		t.Errorf("SubmitBuy(ETH) error = %v", err)
	}
}

func TestSubmitBuy_RejectsBelowMinimum(t *testing.T) {
	m, _ := newTestManager(t, &scriptedBroker{statuses: []string{domain.StatusFilled}})

	if _, err := m.SubmitBuy(context.Background(), "BTC", domain.TagEntry, 0.5); err == nil {
		t.Error("SubmitBuy() below $1 must fail")
	}
}

func TestSubmitBuy_PersistsPendingRecord(t *testing.T) {
	m, book := newTestManager(t, &scriptedBroker{statuses: []string{domain.StatusPending}})

	rec, err := m.SubmitBuy(context.Background(), "BTC", domain.TagEntry, 100)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ClientID != fmt.Sprintf("%s-BTC-%d", domain.TagEntry, rec.Seq) {
		t.Errorf("ClientID = %q, want tag-symbol-seq", rec.ClientID)
	}
	if rec.Status != domain.StatusSubmitted {
		t.Errorf("Status = %q, want %q", rec.Status, domain.StatusSubmitted)
	}

	pending := book.PendingOrders()
	if len(pending) != 1 || pending[0].ClientID != rec.ClientID {
		t.Errorf("pending = %v, want the submitted record", pending)
	}
}

func TestWaitForTerminal_PollsUntilFilled(t *testing.T) {
	sb := &scriptedBroker{statuses: []string{domain.StatusPending, domain.StatusPending, domain.StatusFilled}}
	m, _ := newTestManager(t, sb)

	rec, err := m.SubmitBuy(context.Background(), "BTC", domain.TagEntry, 100)
	if err != nil {
		t.Fatal(err)
	}
	order, err := m.WaitForTerminal(context.Background(), rec)
	if err != nil {
		t.Fatalf("WaitForTerminal() error = %v", err)
	}
	if order.Status != domain.StatusFilled {
		t.Errorf("Status = %q, want filled", order.Status)
	}
}

func TestWaitForTerminal_GivesUpAfterMaxWait(t *testing.T) {
	m, _ := newTestManager(t, &scriptedBroker{statuses: []string{domain.StatusPending}})

	rec, err := m.SubmitBuy(context.Background(), "BTC", domain.TagEntry, 100)
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.WaitForTerminal(context.Background(), rec)
	if !errors.Is(err, domain.ErrOrderStillPending) {
		t.Errorf("error = %v, want ErrOrderStillPending", err)
	}
}

func TestWaitForTerminal_SurvivesPollTimeouts(t *testing.T) {
	sb := &scriptedBroker{orderErr: fmt.Errorf("get_order: %w", domain.ErrBrokerTimeout)}
	m, _ := newTestManager(t, sb)

	rec, err := m.SubmitBuy(context.Background(), "BTC", domain.TagEntry, 100)
	if err != nil {
		t.Fatal(err)
	}

	// После пары неудачных опросов брокер оживает
	go func() {
		time.Sleep(15 * time.Millisecond)
		sb.mu.Lock()
		sb.orderErr = nil
		sb.statuses = []string{domain.StatusFilled}
		sb.mu.Unlock()
	}()

	order, err := m.WaitForTerminal(context.Background(), rec)
	if err != nil {
		t.Fatalf("WaitForTerminal() error = %v", err)
	}
	if order.Status != domain.StatusFilled {
		t.Errorf("Status = %q, want filled", order.Status)
	}
}

func TestReconcileOnStartup_ResolvesFilledOrder(t *testing.T) {
	sb := &scriptedBroker{statuses: []string{domain.StatusFilled}}
	m, book := newTestManager(t, sb)

	rec := &domain.OrderRecord{
		ClientID:      "ENTRY-BTC-1",
		Tag:           domain.TagEntry,
		Symbol:        "BTC",
		Side:          domain.SideBuy,
		RequestedSize: 100,
		BrokerOrderID: "broker-9",
		Status:        domain.StatusSubmitted,
		Seq:           1,
	}
	if err := book.AddPending(rec); err != nil {
		t.Fatal(err)
	}

	if err := m.ReconcileOnStartup(context.Background()); err != nil {
		t.Fatalf("ReconcileOnStartup() error = %v", err)
	}

	if len(book.PendingOrders()) != 0 {
		t.Error("filled order must leave the pending set")
	}
	pos := book.Position("BTC")
	if pos == nil || pos.Quantity != 0.001 {
		t.Errorf("position = %+v, want recovered 0.001 BTC", pos)
	}
	if pos != nil && !pos.EntryDone {
		t.Error("recovered entry buy must mark the entry as done")
	}
	if sb.placeCalls != 0 {
		t.Errorf("placeCalls = %d, reconciliation must never resubmit", sb.placeCalls)
	}
}

func TestReconcileOnStartup_FlagsUnresolvable(t *testing.T) {
	sb := &scriptedBroker{orderErr: fmt.Errorf("get_order: %w", domain.ErrBrokerTimeout)}
	m, book := newTestManager(t, sb)

	rec := &domain.OrderRecord{
		ClientID:      "DCA-ETH-3",
		Tag:           domain.TagDCA,
		Symbol:        "ETH",
		Side:          domain.SideBuy,
		RequestedSize: 50,
		BrokerOrderID: "broker-9",
		Status:        domain.StatusSubmitted,
		Seq:           3,
	}
	if err := book.AddPending(rec); err != nil {
		t.Fatal(err)
	}

	if err := m.ReconcileOnStartup(context.Background()); err != nil {
		t.Fatalf("ReconcileOnStartup() error = %v", err)
	}

	pos := book.Position("ETH")
	if pos == nil || !pos.NeedsAttention {
		t.Error("unresolvable order must flag the symbol for the operator")
	}
	if sb.placeCalls != 0 {
		t.Errorf("placeCalls = %d, want 0", sb.placeCalls)
	}
}
