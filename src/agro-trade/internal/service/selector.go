package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/store"
)

// TransporterSelector picks one transporter from the candidates, or reports false.
// Candidates arrive in registration order.
type TransporterSelector func(candidates []model.User) (model.User, bool)

// FirstAvailable picks the earliest registered transporter.
func FirstAvailable(candidates []model.User) (model.User, bool) {
	if len(candidates) == 0 {
		return model.User{}, false
	}
	return candidates[0], true
}

// pickTransporter runs the selector over every transporter not in exclude.
func (s *Service) pickTransporter(ctx context.Context, exclude []string) (model.User, bool, error) {
	users, err := s.store.ListUsers(ctx, store.UserFilter{Role: model.RoleTransporter})
	if err != nil {
		return model.User{}, false, fmt.Errorf("list transporters: %w", err)
	}
	candidates := slices.DeleteFunc(users, func(u model.User) bool {
		return slices.Contains(exclude, u.ID)
	})
	picked, ok := s.selector(candidates)
	return picked, ok, nil
}
