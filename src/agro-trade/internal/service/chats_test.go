package service

import (
	"errors"
	"testing"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/testutil"
)

func TestStartChatIsGetOrCreate(t *testing.T) {
	e := newEnv(t)

	first, err := e.svc.StartChat(e.ctx, caller(e.buyer), model.StartChatRequest{UserID: e.farmer.ID, ListingID: e.listing.ID})
	testutil.AssertNoError(t, err)
	second, err := e.svc.StartChat(e.ctx, caller(e.farmer), model.StartChatRequest{UserID: e.buyer.ID})
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, first.ID, second.ID)
	testutil.AssertEqual(t, e.listing.ID, second.ListingID)

	_, err = e.svc.StartChat(e.ctx, caller(e.buyer), model.StartChatRequest{UserID: e.buyer.ID})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("self chat: expected ErrInvalidInput, got %v", err)
	}
	_, err = e.svc.StartChat(e.ctx, caller(e.buyer), model.StartChatRequest{UserID: "ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown peer: expected ErrNotFound, got %v", err)
	}
}

func TestSendMessageTracksUnread(t *testing.T) {
	e := newEnv(t)
	chat, err := e.svc.StartChat(e.ctx, caller(e.buyer), model.StartChatRequest{UserID: e.farmer.ID})
	testutil.AssertNoError(t, err)

	for _, text := range []string{"hello", "is it still available?"} {
		_, err := e.svc.SendMessage(e.ctx, caller(e.buyer), chat.ID, model.SendMessageRequest{Text: text})
		testutil.AssertNoError(t, err)
	}

	stored, err := e.st.GetChat(e.ctx, chat.ID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, e.farmer.ID, stored.UnreadBy)
	testutil.AssertEqual(t, 2, stored.UnreadCount)
	testutil.AssertEqual(t, "is it still available?", stored.LastMessage)
	if stored.LastMessageTime == nil {
		t.Fatal("last message time not set")
	}
	testutil.AssertEqual(t, "New message from Meera", e.notifications(e.farmer.ID)[0].Message)

	reply, err := e.svc.SendMessage(e.ctx, caller(e.farmer), chat.ID, model.SendMessageRequest{Text: "yes"})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, e.buyer.ID, reply.ReceiverID)

	stored, _ = e.st.GetChat(e.ctx, chat.ID)
	testutil.AssertEqual(t, e.buyer.ID, stored.UnreadBy)
	testutil.AssertEqual(t, 1, stored.UnreadCount)

	msgs, _ := e.st.ListMessages(e.ctx, chat.ID)
	testutil.AssertEqual(t, 3, len(msgs))
	testutil.AssertEqual(t, "hello", msgs[0].Text)
}

func TestMarkChatRead(t *testing.T) {
	e := newEnv(t)
	chat, _ := e.svc.StartChat(e.ctx, caller(e.buyer), model.StartChatRequest{UserID: e.farmer.ID})
	_, err := e.svc.SendMessage(e.ctx, caller(e.buyer), chat.ID, model.SendMessageRequest{Text: "ping"})
	testutil.AssertNoError(t, err)

	unchanged, err := e.svc.MarkChatRead(e.ctx, caller(e.buyer), chat.ID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, unchanged.UnreadCount, "sender reading does not clear receiver's counter")

	read, err := e.svc.MarkChatRead(e.ctx, caller(e.farmer), chat.ID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 0, read.UnreadCount)
}

func TestChatParticipantsOnly(t *testing.T) {
	e := newEnv(t)
	chat, _ := e.svc.StartChat(e.ctx, caller(e.buyer), model.StartChatRequest{UserID: e.farmer.ID})

	_, err := e.svc.SendMessage(e.ctx, caller(e.other), chat.ID, model.SendMessageRequest{Text: "hi"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("outsider send: expected ErrUnauthorized, got %v", err)
	}
	_, err = e.svc.SendMessage(e.ctx, caller(e.buyer), chat.ID, model.SendMessageRequest{Text: "  "})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank message: expected ErrInvalidInput, got %v", err)
	}
	_, err = e.svc.MarkChatRead(e.ctx, caller(e.other), chat.ID)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("outsider read: expected ErrUnauthorized, got %v", err)
	}
}
