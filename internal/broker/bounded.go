package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillm/powertrader/internal/domain"
)

// Bounded оборачивает брокера жестким лимитом времени на каждый вызов.
// Клиент биржи известен тем, что некоторые запросы статуса ордера висят
// бесконечно, игнорируя собственный HTTP-таймаут. Поэтому каждый вызов
// уходит в отдельную горутину, а обертка ждет не дольше timeout и
// возвращает domain.ErrBrokerTimeout. Зависшая горутина доживает свое в
// фоне; канал с буфером 1 не дает ей утечь навсегда при записи результата.
type Bounded struct {
	broker  Broker
	timeout time.Duration
}

// NewBounded создает обертку с лимитом времени на вызов
func NewBounded(b Broker, timeout time.Duration) *Bounded {
	return &Bounded{broker: b, timeout: timeout}
}

type pricesResult struct {
	quotes map[string]Quote
	err    error
}

func (b *Bounded) GetPrices(ctx context.Context, products []string) (map[string]Quote, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	ch := make(chan pricesResult, 1)
	go func() {
		quotes, err := b.broker.GetPrices(callCtx, products)
		ch <- pricesResult{quotes, err}
	}()

	select {
	case res := <-ch:
		return res.quotes, res.err
	case <-callCtx.Done():
		return nil, fmt.Errorf("get_prices: %w", domain.ErrBrokerTimeout)
	}
}

type holdingsResult struct {
	holdings []Holding
	err      error
}

func (b *Bounded) GetHoldings(ctx context.Context) ([]Holding, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	ch := make(chan holdingsResult, 1)
	go func() {
		holdings, err := b.broker.GetHoldings(callCtx)
		ch <- holdingsResult{holdings, err}
	}()

	select {
	case res := <-ch:
		return res.holdings, res.err
	case <-callCtx.Done():
		return nil, fmt.Errorf("get_holdings: %w", domain.ErrBrokerTimeout)
	}
}

type floatResult struct {
	value float64
	err   error
}

func (b *Bounded) GetBuyingPower(ctx context.Context) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	ch := make(chan floatResult, 1)
	go func() {
		value, err := b.broker.GetBuyingPower(callCtx)
		ch <- floatResult{value, err}
	}()

	select {
	case res := <-ch:
		return res.value, res.err
	case <-callCtx.Done():
		return 0, fmt.Errorf("get_buying_power: %w", domain.ErrBrokerTimeout)
	}
}

type stringResult struct {
	value string
	err   error
}

func (b *Bounded) PlaceBuy(ctx context.Context, product string, usdAmount float64, clientID string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	ch := make(chan stringResult, 1)
	go func() {
		id, err := b.broker.PlaceBuy(callCtx, product, usdAmount, clientID)
		ch <- stringResult{id, err}
	}()

	select {
	case res := <-ch:
		return res.value, res.err
	case <-callCtx.Done():
		return "", fmt.Errorf("place_buy %s: %w", product, domain.ErrBrokerTimeout)
	}
}

func (b *Bounded) PlaceSell(ctx context.Context, product string, quantity float64, clientID string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	ch := make(chan stringResult, 1)
	go func() {
		id, err := b.broker.PlaceSell(callCtx, product, quantity, clientID)
		ch <- stringResult{id, err}
	}()

	select {
	case res := <-ch:
		return res.value, res.err
	case <-callCtx.Done():
		return "", fmt.Errorf("place_sell %s: %w", product, domain.ErrBrokerTimeout)
	}
}

type orderResult struct {
	order *Order
	err   error
}

func (b *Bounded) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	ch := make(chan orderResult, 1)
	go func() {
		order, err := b.broker.GetOrder(callCtx, orderID)
		ch <- orderResult{order, err}
	}()

	select {
	case res := <-ch:
		return res.order, res.err
	case <-callCtx.Done():
		return nil, fmt.Errorf("get_order %s: %w", orderID, domain.ErrBrokerTimeout)
	}
}
