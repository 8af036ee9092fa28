package hub

import (
	"errors"
	"os"
	"testing"

	"github.com/kirillm/powertrader/internal/domain"
)

func writeCommand(t *testing.T, h *Hub, body string) {
	t.Helper()
	if err := os.WriteFile(h.Path(ManualCommandFile), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPeekManualCommand_ValidBuy(t *testing.T) {
	h := newTestHub(t)
	writeCommand(t, h, `{"action":"BUY","symbol":"btc","amount_usd":25}`)

	cmd, err := h.PeekManualCommand()
	if err != nil {
		t.Fatalf("PeekManualCommand() error = %v", err)
	}
	if cmd == nil {
		t.Fatal("PeekManualCommand() = nil, want command")
	}
	if cmd.Action != domain.ManualActionBuy || cmd.Symbol != "BTC" || cmd.AmountUSD != 25 {
		t.Errorf("got %+v, want normalized buy BTC $25", cmd)
	}

	// Peek не удаляет файл: команда должна пережить падение до записи исхода
	if _, err := os.Stat(h.Path(ManualCommandFile)); err != nil {
		t.Error("command file removed by peek")
	}
}

func TestPeekManualCommand_ExactlyOnce(t *testing.T) {
	h := newTestHub(t)
	writeCommand(t, h, `{"action":"sell_all","symbol":"ETH"}`)

	cmd, err := h.PeekManualCommand()
	if err != nil || cmd == nil {
		t.Fatalf("first peek: cmd=%v err=%v", cmd, err)
	}
	h.DeleteManualCommand()

	cmd, err = h.PeekManualCommand()
	if err != nil {
		t.Fatalf("second peek error = %v", err)
	}
	if cmd != nil {
		t.Errorf("second peek = %+v, want nil after delete", cmd)
	}
}

func TestPeekManualCommand_NoFile(t *testing.T) {
	h := newTestHub(t)

	cmd, err := h.PeekManualCommand()
	if err != nil {
		t.Fatalf("PeekManualCommand() error = %v", err)
	}
	if cmd != nil {
		t.Errorf("PeekManualCommand() = %+v, want nil", cmd)
	}
}

func TestPeekManualCommand_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown action", `{"action":"short","symbol":"BTC","amount_usd":10}`},
		{"buy below minimum", `{"action":"buy","symbol":"BTC","amount_usd":0.5}`},
		{"empty symbol", `{"action":"buy","symbol":"","amount_usd":10}`},
		{"corrupt json", `{action: nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub(t)
			writeCommand(t, h, tt.body)

			_, err := h.PeekManualCommand()
			if !errors.Is(err, domain.ErrInvalidCommand) {
				t.Errorf("error = %v, want ErrInvalidCommand", err)
			}
			// Некорректный файл должен быть убран сразу
			if _, serr := os.Stat(h.Path(ManualCommandFile)); !os.IsNotExist(serr) {
				t.Error("invalid command file was not removed")
			}
		})
	}
}
