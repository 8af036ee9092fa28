package hub

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kirillm/powertrader/pkg/utils"
)

// Имена общих документов hub-каталога. Схему каждого файла владеет ровно
// один процесс-писатель; читатели никогда не берут блокировок.
const (
	StatusFile         = "trader_status.json"
	LedgerFile         = "pnl_ledger.json"
	SettingsFile       = "trader_settings.json"
	ManualCommandFile  = "manual_command.json"
	TradeHistoryFile   = "trade_history.jsonl"
	DecisionLogFile    = "decision_log.jsonl"
	AccountHistoryFile = "account_value_history.jsonl"
)

// Hub — файловый слой обмена между движком, генератором сигналов и дашбордом.
// Снапшоты заменяются атомарно (temp + rename), журналы только дописываются.
type Hub struct {
	dir    string
	logger *utils.Logger
}

// New создает hub и гарантирует существование каталога
func New(dir string, logger *utils.Logger) (*Hub, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create hub dir %s: %w", dir, err)
	}
	return &Hub{dir: dir, logger: logger}, nil
}

// Dir возвращает корень hub-каталога
func (h *Hub) Dir() string {
	return h.dir
}

// Path возвращает абсолютный путь документа внутри hub
func (h *Hub) Path(name string) string {
	return filepath.Join(h.dir, name)
}

// WriteSnapshot атомарно заменяет JSON-документ. Читатель из другого
// процесса никогда не увидит частично записанный файл.
func (h *Hub) WriteSnapshot(name string, v interface{}) error {
	return WriteJSONAtomic(h.Path(name), v)
}

// ReadSnapshot читает последний успешно записанный документ.
// Возвращает false если файл отсутствует или не парсится — отсутствие
// и порча данных для читателя равнозначны "документа нет".
func (h *Hub) ReadSnapshot(name string, out interface{}) bool {
	ok, err := ReadJSONFile(h.Path(name), out)
	if err != nil {
		h.logger.Warn("Unreadable snapshot %s: %v", name, err)
	}
	return ok
}

// AppendLog дописывает одну JSON-запись в журнал, по записи на строку
func (h *Hub) AppendLog(name string, rec interface{}) error {
	return AppendJSONL(h.Path(name), rec)
}

// ReadLog последовательно читает журнал; битые строки пропускаются
func (h *Hub) ReadLog(name string, each func(line json.RawMessage)) error {
	f, err := os.Open(h.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open log %s: %w", name, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !json.Valid([]byte(line)) {
			continue
		}
		each(json.RawMessage(line))
	}
	return sc.Err()
}

// RotateLog обрезает журнал до последних maxLines записей. Вызывается
// лениво в начале прохода, а не на каждую запись. Перезапись идет через
// временный файл, чтобы читатели не увидели усеченный наполовину журнал.
func (h *Hub) RotateLog(name string, maxLines int) error {
	if maxLines <= 0 {
		return nil
	}
	path := h.Path(name)

	var lines []string
	err := h.ReadLog(name, func(line json.RawMessage) {
		lines = append(lines, string(line))
	})
	if err != nil {
		return err
	}
	if len(lines) <= maxLines {
		return nil
	}

	kept := lines[len(lines)-maxLines:]
	tmp := tempName(path)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp log: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, line := range kept {
		fmt.Fprintln(w, line)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to flush rotated log: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close rotated log: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace rotated log: %w", err)
	}
	h.logger.Debug("Rotated %s: %d -> %d lines", name, len(lines), len(kept))
	return nil
}

// WriteJSONAtomic пишет документ во временный файл и переименовывает его
// на место. Суффикс uuid защищает от коллизий одновременных писателей.
func WriteJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tmp := tempName(path)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadJSONFile читает JSON-документ; (false, nil) если файла нет,
// (false, err) если файл есть, но не парсится
func ReadJSONFile(path string, out interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// AppendJSONL дописывает одну компактную JSON-строку в конец файла
func AppendJSONL(path string, rec interface{}) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal log record: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append to %s: %w", filepath.Base(path), err)
	}
	return nil
}

func tempName(path string) string {
	return path + ".tmp." + uuid.NewString()[:8]
}
