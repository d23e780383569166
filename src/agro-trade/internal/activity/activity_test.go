package activity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/store"
)

func TestFeedOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var b store.Batch
	for i := 0; i < 60; i++ {
		Record(&b, base.Add(time.Duration(i)*time.Second), fmt.Sprintf("entry %d", i))
	}
	if err := st.Commit(ctx, b); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}

	tests := []struct {
		name      string
		limit     int
		wantLen   int
		wantFirst string
	}{
		{name: "default limit", limit: 0, wantLen: DefaultFeedLimit, wantFirst: "entry 59"},
		{name: "explicit limit", limit: 5, wantLen: 5, wantFirst: "entry 59"},
		{name: "limit above size", limit: 100, wantLen: 60, wantFirst: "entry 59"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := Feed(ctx, st, tt.limit)
			if err != nil {
				t.Fatalf("Feed() error: %v", err)
			}
			if len(entries) != tt.wantLen {
				t.Fatalf("Feed() len = %d, want %d", len(entries), tt.wantLen)
			}
			if entries[0].Description != tt.wantFirst {
				t.Errorf("Feed()[0] = %q, want %q", entries[0].Description, tt.wantFirst)
			}
		})
	}
}

func TestFeedEmpty(t *testing.T) {
	entries, err := Feed(context.Background(), store.NewMemoryStore(), 10)
	if err != nil {
		t.Fatalf("Feed() error: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("Feed() = %v, want empty slice", entries)
	}
}
