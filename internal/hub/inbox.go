package hub

import (
	"fmt"
	"os"
	"strings"

	"github.com/kirillm/powertrader/internal/domain"
)

// PeekManualCommand читает команду оператора, не удаляя файл.
// Удаление откладывается до того, как действие будет надежно записано
// в книгу — так достигается ровно-однократное исполнение.
// Некорректная команда удаляется сразу и возвращает ошибку.
func (h *Hub) PeekManualCommand() (*domain.ManualCommand, error) {
	var cmd domain.ManualCommand
	ok, err := ReadJSONFile(h.Path(ManualCommandFile), &cmd)
	if err != nil {
		// Битый файл никогда не исполнится — убираем, чтобы не зациклиться
		h.DeleteManualCommand()
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCommand, err)
	}
	if !ok {
		return nil, nil
	}

	cmd.Action = strings.ToLower(strings.TrimSpace(cmd.Action))
	cmd.Symbol = strings.ToUpper(strings.TrimSpace(cmd.Symbol))

	if err := validateManualCommand(&cmd); err != nil {
		h.DeleteManualCommand()
		return nil, err
	}
	return &cmd, nil
}

// DeleteManualCommand удаляет файл команды после исполнения
func (h *Hub) DeleteManualCommand() {
	if err := os.Remove(h.Path(ManualCommandFile)); err != nil && !os.IsNotExist(err) {
		h.logger.Warn("Failed to remove manual command file: %v", err)
	}
}

// validateManualCommand проверяет команду по явному списку допустимых действий
func validateManualCommand(cmd *domain.ManualCommand) error {
	if cmd.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", domain.ErrInvalidCommand)
	}
	switch cmd.Action {
	case domain.ManualActionBuy:
		if cmd.AmountUSD < domain.MinMarketOrderUSD {
			return fmt.Errorf("%w: buy amount $%.2f below minimum $%.2f",
				domain.ErrInvalidCommand, cmd.AmountUSD, domain.MinMarketOrderUSD)
		}
	case domain.ManualActionSellAll:
	default:
		return fmt.Errorf("%w: unknown action %q", domain.ErrInvalidCommand, cmd.Action)
	}
	return nil
}
