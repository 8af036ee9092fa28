package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// AuthManager управляет правами доступа и rate limiting
type AuthManager struct {
	adminIDs     map[int64]bool
	rateLimiters map[int64]*rateLimiter
	mu           sync.Mutex
}

type rateLimiter struct {
	windowStart  time.Time
	requestCount int
}

// NewAuthManager создает новый менеджер авторизации.
// adminIDsStr — ID через запятую; пустая строка разрешает всем.
func NewAuthManager(adminIDsStr string) *AuthManager {
	am := &AuthManager{
		adminIDs:     make(map[int64]bool),
		rateLimiters: make(map[int64]*rateLimiter),
	}
	for _, idStr := range strings.Split(adminIDsStr, ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			am.adminIDs[id] = true
		}
	}
	return am
}

// IsAdmin проверяет, разрешены ли пользователю управляющие команды
func (am *AuthManager) IsAdmin(userID int64) bool {
	am.mu.Lock()
	defer am.mu.Unlock()

	// Пустой список админов означает, что ограничение не настроено
	if len(am.adminIDs) == 0 {
		return true
	}
	return am.adminIDs[userID]
}

// CheckRateLimit проверяет частоту запросов пользователя
func (am *AuthManager) CheckRateLimit(userID int64, maxPerSecond int) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	limiter, ok := am.rateLimiters[userID]
	if !ok {
		limiter = &rateLimiter{}
		am.rateLimiters[userID] = limiter
	}

	now := time.Now()
	if now.Sub(limiter.windowStart) >= time.Second {
		limiter.windowStart = now
		limiter.requestCount = 0
	}

	limiter.requestCount++
	if limiter.requestCount > maxPerSecond {
		wait := time.Second - now.Sub(limiter.windowStart)
		return fmt.Errorf("rate limit exceeded, please wait %v", wait.Round(time.Millisecond))
	}
	return nil
}
