// Package notify fans a message out to a set of users as notification records.
package notify

import (
	"time"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/store"
	"github.com/google/uuid"
)

// Broadcast stages one notification per distinct, non-empty recipient into b
// and returns how many were staged. The records are written when b is committed.
func Broadcast(b *store.Batch, at time.Time, message string, recipients ...string) int {
	seen := make(map[string]struct{}, len(recipients))
	staged := 0
	for _, id := range recipients {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		b.Notifications = append(b.Notifications, model.Notification{
			ID:        uuid.NewString(),
			UserID:    id,
			Message:   message,
			CreatedAt: at,
		})
		staged++
	}
	return staged
}
