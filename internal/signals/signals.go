package signals

import (
	"path/filepath"
	"time"

	"github.com/kirillm/powertrader/internal/domain"
	"github.com/kirillm/powertrader/internal/hub"
	"github.com/kirillm/powertrader/pkg/utils"
)

// Имена файлов генератора сигналов внутри каталога сигналов
const (
	ReadyMarkerFile = "signals_ready.json"
	snapshotSuffix  = "_signal.json"
)

// readyMarker публикуется генератором после первого полного прохода
type readyMarker struct {
	Ready       bool      `json:"ready"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Reader читает снапшоты генератора сигналов. Движок — только потребитель:
// каталог сигналов целиком принадлежит процессу-генератору.
type Reader struct {
	dir    string
	maxAge time.Duration
	logger *utils.Logger
	now    func() time.Time
}

// NewReader создает читатель сигналов с порогом свежести
func NewReader(dir string, maxAge time.Duration, logger *utils.Logger) *Reader {
	return &Reader{dir: dir, maxAge: maxAge, logger: logger, now: time.Now}
}

// Ready сообщает, опубликовал ли генератор маркер готовности.
// До маркера движок не торгует: пустой или частичный набор снапшотов
// нельзя отличить от осмысленного "сигналов нет".
func (r *Reader) Ready() bool {
	var marker readyMarker
	ok, err := hub.ReadJSONFile(filepath.Join(r.dir, ReadyMarkerFile), &marker)
	if err != nil {
		r.logger.Warn("Unreadable readiness marker: %v", err)
		return false
	}
	return ok && marker.Ready
}

// Snapshot возвращает сигнал по символу. Отсутствующий, битый или
// устаревший снапшот деградирует до нулевых уровней без прогнозных
// линий — движок в этом случае просто не действует по символу.
func (r *Reader) Snapshot(symbol string) domain.SignalSnapshot {
	path := filepath.Join(r.dir, symbol+snapshotSuffix)

	var snap domain.SignalSnapshot
	ok, err := hub.ReadJSONFile(path, &snap)
	if err != nil {
		r.logger.Warn("Unreadable signal snapshot for %s: %v", symbol, err)
	}
	if !ok {
		return domain.SignalSnapshot{Symbol: symbol, Stale: true}
	}

	snap.Symbol = symbol
	if r.maxAge > 0 && r.now().Sub(snap.GeneratedAt) > r.maxAge {
		r.logger.Debug("Signal for %s is stale (generated %s), treating as no signal",
			symbol, snap.GeneratedAt.Format(time.RFC3339))
		return domain.SignalSnapshot{Symbol: symbol, GeneratedAt: snap.GeneratedAt, Stale: true}
	}

	snap.LongLevel = clampLevel(snap.LongLevel)
	snap.ShortLevel = clampLevel(snap.ShortLevel)
	return snap
}

func clampLevel(v int) int {
	if v < 0 {
		return 0
	}
	if v > 7 {
		return 7
	}
	return v
}
