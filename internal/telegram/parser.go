package telegram

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CommandArgs представляет распарсенные аргументы команды
type CommandArgs struct {
	Command string
	Symbol  string
	Amount  float64
	Raw     []string
}

var symbolRe = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)

// ParseCommand парсит команду и аргументы
func ParseCommand(text string) (*CommandArgs, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil, fmt.Errorf("not a command")
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	// Бот в группе получает команды вида /status@botname
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	args := &CommandArgs{
		Command: cmd,
		Raw:     parts[1:],
	}

	switch cmd {
	case "status", "positions", "pnl", "pause", "resume", "help", "start":
		return args, nil

	case "clear", "sell":
		// /clear SYMBOL, /sell SYMBOL
		if len(parts) < 2 {
			return nil, fmt.Errorf("usage: /%s SYMBOL", cmd)
		}
		sym, err := normalizeSymbol(parts[1])
		if err != nil {
			return nil, err
		}
		args.Symbol = sym
		return args, nil

	case "buy":
		// /buy SYMBOL USD_AMOUNT
		if len(parts) < 3 {
			return nil, fmt.Errorf("usage: /buy SYMBOL USD_AMOUNT")
		}
		sym, err := normalizeSymbol(parts[1])
		if err != nil {
			return nil, err
		}
		amount, err := strconv.ParseFloat(strings.TrimPrefix(parts[2], "$"), 64)
		if err != nil || amount <= 0 {
			return nil, fmt.Errorf("invalid amount: %s", parts[2])
		}
		args.Symbol = sym
		args.Amount = amount
		return args, nil

	default:
		return nil, fmt.Errorf("unknown command: /%s", cmd)
	}
}

// normalizeSymbol приводит тикер к верхнему регистру и отрезает суффикс пары.
// Голый суффикс "USD" не отрезается: тикеры вроде TUSD заканчиваются на него.
func normalizeSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	sym = strings.TrimSuffix(sym, "-USD")
	if !symbolRe.MatchString(sym) {
		return "", fmt.Errorf("invalid symbol: %s", s)
	}
	return sym, nil
}
