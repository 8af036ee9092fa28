package domain

import "errors"

var (
	// ErrNotFound возвращается когда запись не найдена
	ErrNotFound = errors.New("not found")

	// ErrExchangeAPI возвращается при ошибке API биржи
	ErrExchangeAPI = errors.New("exchange API error")

	// ErrBrokerTimeout возвращается когда вызов брокера не уложился в лимит времени.
	// Зависший вызов считается неудачей, а не "еще выполняется".
	ErrBrokerTimeout = errors.New("broker call timed out")

	// ErrOrderStillPending возвращается когда ордер не достиг терминального
	// статуса за отведенное время опроса
	ErrOrderStillPending = errors.New("order still pending")

	// ErrOrderInFlight возвращается при попытке разместить второй ордер
	// по символу, у которого уже есть незавершенный ордер
	ErrOrderInFlight = errors.New("order already in flight for symbol")

	// ErrInvalidCommand возвращается на некорректную ручную команду
	ErrInvalidCommand = errors.New("invalid manual command")

	// ErrPositionQuarantined возвращается для символа, исключенного из
	// автоматики до вмешательства оператора
	ErrPositionQuarantined = errors.New("position requires operator attention")
)
