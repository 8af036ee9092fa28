package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Settings — стратегические параметры, общие с дашбордом. Дашборд переписывает
// trader_settings.json атомарно; движок перечитывает его по mtime каждый проход.
type Settings struct {
	Coins              []string
	TradeStartLevel    int
	StartAllocationPct float64
	DCAMultiplier      float64
	DCALevels          []float64
	MaxDCABuysPer24h   int
	DCACooldownMinutes int
	PMStartPctNoDCA    float64
	PMStartPctWithDCA  float64
	TrailingGapPct     float64
}

// DefaultSettings возвращает параметры по умолчанию
func DefaultSettings() Settings {
	return Settings{
		Coins:              []string{"BTC", "ETH", "XRP", "BNB", "DOGE"},
		TradeStartLevel:    3,
		StartAllocationPct: 0.005,
		DCAMultiplier:      2.0,
		DCALevels:          []float64{-2.5, -5.0, -10.0, -20.0, -30.0, -40.0, -50.0},
		MaxDCABuysPer24h:   2,
		DCACooldownMinutes: 60,
		PMStartPctNoDCA:    5.0,
		PMStartPctWithDCA:  2.5,
		TrailingGapPct:     0.5,
	}
}

// TrailingSig возвращает подпись трейлинг-настроек. При смене подписи
// движок сбрасывает все трейлинг-состояния.
func (s Settings) TrailingSig() string {
	return fmt.Sprintf("%.6f|%.6f|%.6f", s.TrailingGapPct, s.PMStartPctNoDCA, s.PMStartPctWithDCA)
}

// NextDCALevel возвращает жесткий процент просадки для стадии.
// После конца лестницы последний уровень повторяется бесконечно.
func (s Settings) NextDCALevel(stage int) float64 {
	if len(s.DCALevels) == 0 {
		return -50.0
	}
	if stage < len(s.DCALevels) {
		return s.DCALevels[stage]
	}
	return s.DCALevels[len(s.DCALevels)-1]
}

// SettingsLoader перечитывает общий файл настроек по mtime
type SettingsLoader struct {
	path string

	mu      sync.Mutex
	mtime   time.Time
	current Settings
}

// NewSettingsLoader создает загрузчик с дефолтными настройками
func NewSettingsLoader(path string) *SettingsLoader {
	return &SettingsLoader{path: path, current: DefaultSettings()}
}

// Load возвращает актуальные настройки, перечитывая файл только при
// изменении mtime. Отсутствующий или битый файл оставляет прежние значения.
func (l *SettingsLoader) Load() Settings {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := os.Stat(l.path)
	if err != nil {
		return l.current
	}
	if info.ModTime().Equal(l.mtime) {
		return l.current
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return l.current
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return l.current
	}

	// Поля коэрцируются по явному списку: неудачный парс отдельного поля
	// молча оставляет прежнее значение. Это единственное место в движке,
	// где ошибка парсинга не логируется.
	s := l.current

	if coins, ok := stringList(raw["coins"]); ok && len(coins) > 0 {
		s.Coins = coins
	}
	if v, ok := intField(raw["trade_start_level"]); ok {
		s.TradeStartLevel = clampInt(v, 1, 7)
	}
	if v, ok := floatField(raw["start_allocation_pct"]); ok && v >= 0 {
		s.StartAllocationPct = v
	}
	if v, ok := floatField(raw["dca_multiplier"]); ok && v >= 0 {
		s.DCAMultiplier = v
	}
	if levels, ok := floatList(raw["dca_levels"]); ok && len(levels) > 0 {
		s.DCALevels = levels
	}
	if v, ok := intField(raw["max_dca_buys_per_24h"]); ok && v >= 0 {
		s.MaxDCABuysPer24h = v
	}
	if v, ok := intField(raw["dca_cooldown_minutes"]); ok && v >= 0 {
		s.DCACooldownMinutes = v
	}
	if v, ok := floatField(raw["pm_start_pct_no_dca"]); ok && v >= 0 {
		s.PMStartPctNoDCA = v
	}
	if v, ok := floatField(raw["pm_start_pct_with_dca"]); ok && v >= 0 {
		s.PMStartPctWithDCA = v
	}
	if v, ok := floatField(raw["trailing_gap_pct"]); ok && v >= 0 {
		s.TrailingGapPct = v
	}

	l.mtime = info.ModTime()
	l.current = s
	return l.current
}

// floatField принимает число или строку вида "2.5" / "2.5%"
func floatField(raw json.RawMessage) (float64, bool) {
	if raw == nil {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, false
	}
	str = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(str), "%"))
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func intField(raw json.RawMessage) (int, bool) {
	f, ok := floatField(raw)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func floatList(raw json.RawMessage) ([]float64, bool) {
	if raw == nil {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	var out []float64
	for _, item := range items {
		if f, ok := floatField(item); ok {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func stringList(raw json.RawMessage) ([]string, bool) {
	if raw == nil {
		return nil, false
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	var out []string
	for _, item := range items {
		item = strings.ToUpper(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out, len(out) > 0
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
