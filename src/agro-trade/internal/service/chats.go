package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/authz"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/notify"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/store"
	"github.com/google/uuid"
)

// StartChat returns the conversation between the caller and another user,
// creating it on first contact.
func (s *Service) StartChat(ctx context.Context, caller model.Caller, req model.StartChatRequest) (chat model.Chat, err error) {
	defer s.track(ctx, "start_chat", time.Now(), &err)

	if err := permit(caller.Role, authz.OpChat); err != nil {
		return model.Chat{}, err
	}
	me, err := s.actor(ctx, caller)
	if err != nil {
		return model.Chat{}, err
	}
	if req.UserID == "" || req.UserID == me.ID {
		return model.Chat{}, fmt.Errorf("%w: chat needs another participant", ErrInvalidInput)
	}
	other, err := s.GetUser(ctx, req.UserID)
	if err != nil {
		return model.Chat{}, err
	}

	pair := model.ChatPairKey(me.ID, other.ID)
	unlock := s.locks.Lock("pair:" + pair)
	defer unlock()

	chat, err = s.store.FindChat(ctx, pair)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Chat{}, fmt.Errorf("find chat: %w", err)
	}

	chat = model.Chat{
		ID:           uuid.NewString(),
		PairKey:      pair,
		Participants: []string{me.ID, other.ID},
		ListingID:    req.ListingID,
		CreatedAt:    s.clock(),
	}
	if err := s.commit(ctx, store.Batch{Chats: []model.Chat{chat}}); err != nil {
		return model.Chat{}, err
	}

	slog.InfoContext(ctx, "chat_started", "chat_id", chat.ID, "listing_id", chat.ListingID)
	return chat, nil
}

// SendMessage appends a message and bumps the receiver's unread counter.
func (s *Service) SendMessage(ctx context.Context, caller model.Caller, chatID string, req model.SendMessageRequest) (msg model.ChatMessage, err error) {
	defer s.track(ctx, "send_message", time.Now(), &err)

	if err := permit(caller.Role, authz.OpChat); err != nil {
		return model.ChatMessage{}, err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return model.ChatMessage{}, fmt.Errorf("%w: message text is required", ErrInvalidInput)
	}
	sender, err := s.actor(ctx, caller)
	if err != nil {
		return model.ChatMessage{}, err
	}

	unlock := s.locks.Lock(chatKey(chatID))
	defer unlock()

	chat, err := s.loadChat(ctx, caller, chatID)
	if err != nil {
		return model.ChatMessage{}, err
	}

	now := s.clock()
	msg = model.ChatMessage{
		ID:         uuid.NewString(),
		ChatID:     chat.ID,
		SenderID:   sender.ID,
		ReceiverID: chat.Other(sender.ID),
		Text:       text,
		CreatedAt:  now,
	}

	chat.LastMessage = text
	chat.LastMessageTime = &now
	if chat.UnreadBy == msg.ReceiverID {
		chat.UnreadCount++
	} else {
		chat.UnreadBy = msg.ReceiverID
		chat.UnreadCount = 1
	}

	var b store.Batch
	b.Chats = append(b.Chats, chat)
	b.Messages = append(b.Messages, msg)
	notify.Broadcast(&b, now, "New message from "+sender.Name, msg.ReceiverID)
	if err := s.commit(ctx, b); err != nil {
		return model.ChatMessage{}, err
	}

	slog.DebugContext(ctx, "chat_message_sent", "chat_id", chat.ID, "message_id", msg.ID)
	return msg, nil
}

// MarkChatRead clears the unread counter when the caller is the one it counts for.
func (s *Service) MarkChatRead(ctx context.Context, caller model.Caller, chatID string) (chat model.Chat, err error) {
	defer s.track(ctx, "mark_chat_read", time.Now(), &err)

	if err := permit(caller.Role, authz.OpChat); err != nil {
		return model.Chat{}, err
	}

	unlock := s.locks.Lock(chatKey(chatID))
	defer unlock()

	chat, err = s.loadChat(ctx, caller, chatID)
	if err != nil {
		return model.Chat{}, err
	}
	if chat.UnreadBy != caller.UserID || chat.UnreadCount == 0 {
		return chat, nil
	}

	chat.UnreadBy = ""
	chat.UnreadCount = 0
	if err := s.commit(ctx, store.Batch{Chats: []model.Chat{chat}}); err != nil {
		return model.Chat{}, err
	}
	return chat, nil
}

func (s *Service) loadChat(ctx context.Context, caller model.Caller, chatID string) (model.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return model.Chat{}, lookupErr("chat", chatID, err)
	}
	if !chat.HasParticipant(caller.UserID) {
		return model.Chat{}, fmt.Errorf("%w: caller is not in chat %s", ErrUnauthorized, chatID)
	}
	return chat, nil
}
