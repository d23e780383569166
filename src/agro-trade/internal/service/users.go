package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/activity"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/authz"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/notify"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/store"
	"github.com/darkelleven/agrochain/src/internal/events"
	"github.com/google/uuid"
)

// RegisterUser creates a user. Emails are unique, compared case-insensitively.
func (s *Service) RegisterUser(ctx context.Context, req model.RegisterUserRequest) (user model.User, err error) {
	defer s.track(ctx, "register_user", time.Now(), &err)

	var out outbox
	defer s.flush(ctx, &out)

	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" || email == "" {
		return model.User{}, fmt.Errorf("%w: name and email are required", ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return model.User{}, fmt.Errorf("%w: malformed email %q", ErrInvalidInput, req.Email)
	}
	role, ok := model.ParseRole(req.Role)
	if !ok {
		return model.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}

	unlock := s.locks.Lock("email:" + email)
	defer unlock()

	existing, err := s.store.ListUsers(ctx, store.UserFilter{Email: email})
	if err != nil {
		return model.User{}, fmt.Errorf("check email: %w", err)
	}
	if len(existing) > 0 {
		return model.User{}, fmt.Errorf("%w: email %s already registered", ErrInvalidState, email)
	}

	now := s.clock()
	user = model.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: now,
	}

	var b store.Batch
	b.Users = append(b.Users, user)
	activity.Record(&b, now, fmt.Sprintf("%s registered as %s", user.Name, user.Role))
	if err := s.commit(ctx, b); err != nil {
		return model.User{}, err
	}

	slog.InfoContext(ctx, "user_registered", "user_id", user.ID, "role", user.Role)
	out.add(events.EventUserRegistered, user.ID, map[string]any{
		"user_id": user.ID,
		"role":    string(user.Role),
	})
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (model.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return model.User{}, lookupErr("user", id, err)
	}
	return u, nil
}

// ToggleVerification flips the verified flag of a user. ADMIN only.
func (s *Service) ToggleVerification(ctx context.Context, caller model.Caller, userID string) (user model.User, err error) {
	defer s.track(ctx, "toggle_verification", time.Now(), &err)

	var out outbox
	defer s.flush(ctx, &out)

	if err := permit(caller.Role, authz.OpToggleVerification); err != nil {
		return model.User{}, err
	}
	if _, err := s.actor(ctx, caller); err != nil {
		return model.User{}, err
	}

	unlock := s.locks.Lock(userKey(userID))
	defer unlock()

	user, err = s.GetUser(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	user.Verified = !user.Verified

	now := s.clock()
	state := "PENDING"
	if user.Verified {
		state = "APPROVED"
	}

	var b store.Batch
	b.Users = append(b.Users, user)
	activity.Record(&b, now, fmt.Sprintf("Admin verified toggle for %s: %t", user.Name, user.Verified))
	notify.Broadcast(&b, now, "Your account verification status is now "+state, user.ID)
	if err := s.commit(ctx, b); err != nil {
		return model.User{}, err
	}

	slog.InfoContext(ctx, "user_verification_changed", "user_id", user.ID, "verified", user.Verified, "admin_id", caller.UserID)
	out.add(events.EventUserVerificationSet, user.ID, map[string]any{
		"user_id":  user.ID,
		"verified": user.Verified,
	})
	return user, nil
}
