package telegram

import (
	"testing"
)

func TestIsAdmin(t *testing.T) {
	tests := []struct {
		name     string
		adminIDs string
		userID   int64
		want     bool
	}{
		{"listed admin", "111,222", 111, true},
		{"second admin with spaces", "111, 222", 222, true},
		{"not listed", "111,222", 333, false},
		{"empty list allows everyone", "", 333, true},
		{"garbage entries ignored", "abc,111", 111, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			am := NewAuthManager(tt.adminIDs)
			if got := am.IsAdmin(tt.userID); got != tt.want {
				t.Errorf("IsAdmin(%d) = %v, want %v", tt.userID, got, tt.want)
			}
		})
	}
}

func TestCheckRateLimit(t *testing.T) {
	am := NewAuthManager("")

	for i := 0; i < 3; i++ {
		if err := am.CheckRateLimit(42, 3); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}
	if err := am.CheckRateLimit(42, 3); err == nil {
		t.Error("fourth request in one second must be rejected")
	}

	// Лимит считается на пользователя
	if err := am.CheckRateLimit(43, 3); err != nil {
		t.Errorf("another user must have an own budget: %v", err)
	}
}
