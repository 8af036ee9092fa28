package broker

import (
	"context"
	"time"
)

// Quote — лучшие цены покупки/продажи по торговой паре
type Quote struct {
	Bid float64
	Ask float64
}

// Holding — остаток актива на счете
type Holding struct {
	Symbol   string
	Quantity float64
}

// Order — нормализованное состояние ордера у брокера
type Order struct {
	ID        string
	Status    string
	FilledQty float64
	AvgPrice  float64
	FeesUSD   float64
	CreatedAt time.Time
}

// Broker — минимальный контракт биржи, который нужен движку.
// Любой метод может зависнуть дольше любого разумного срока, поэтому
// движок вызывает брокера только через Bounded-обертку.
type Broker interface {
	// GetPrices возвращает bid/ask по списку торговых пар
	GetPrices(ctx context.Context, products []string) (map[string]Quote, error)
	// GetHoldings возвращает ненулевые остатки криптоактивов
	GetHoldings(ctx context.Context) ([]Holding, error)
	// GetBuyingPower возвращает доступный остаток USD
	GetBuyingPower(ctx context.Context) (float64, error)
	// PlaceBuy размещает рыночную покупку на сумму в USD
	PlaceBuy(ctx context.Context, product string, usdAmount float64, clientID string) (string, error)
	// PlaceSell размещает рыночную продажу указанного количества
	PlaceSell(ctx context.Context, product string, quantity float64, clientID string) (string, error)
	// GetOrder возвращает текущее состояние ордера
	GetOrder(ctx context.Context, orderID string) (*Order, error)
}
