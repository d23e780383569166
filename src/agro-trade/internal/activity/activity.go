// Package activity keeps the platform-wide audit trail.
package activity

import (
	"context"
	"time"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/store"
	"github.com/google/uuid"
)

const DefaultFeedLimit = 50

// Record stages one audit line into b.
func Record(b *store.Batch, at time.Time, description string) {
	b.Activity = append(b.Activity, model.ActivityEntry{
		ID:          uuid.NewString(),
		Description: description,
		CreatedAt:   at,
	})
}

// Feed returns the most recent entries first. A non-positive limit means DefaultFeedLimit.
func Feed(ctx context.Context, st store.Store, limit int) ([]model.ActivityEntry, error) {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	entries, err := st.ListActivity(ctx, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.ActivityEntry{}
	}
	return entries, nil
}
