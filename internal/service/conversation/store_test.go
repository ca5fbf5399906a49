package conversation_test

import (
	"testing"

	"github.com/tarawell/tara-companion/backend/internal/model/chat"
	"github.com/tarawell/tara-companion/backend/internal/service/conversation"
)

type previewRecorder struct {
	partnerID string
	tail      chat.Message
	calls     int
}

func (p *previewRecorder) UpdatePreview(partnerID string, tail chat.Message) {
	p.partnerID = partnerID
	p.tail = tail
	p.calls++
}

func TestStoreAppendCreatesThread(t *testing.T) {
	preview := &previewRecorder{}
	store := conversation.NewStore(preview)

	msg := chat.NewPendingText("tara-ai", "hello")
	store.Append("tara-ai", msg)

	thread := store.Get("tara-ai")
	if len(thread) != 1 {
		t.Fatalf("expected 1 message, got %d", len(thread))
	}
	if thread[0].ID != msg.ID {
		t.Fatalf("unexpected message id: %s", thread[0].ID)
	}
	if preview.calls != 1 || preview.tail.Body != "hello" {
		t.Fatalf("preview sink not notified with tail: calls=%d tail=%q", preview.calls, preview.tail.Body)
	}
}

func TestStoreReplacePreservesPosition(t *testing.T) {
	store := conversation.NewStore(nil)

	first := chat.NewPendingText("p1", "one")
	second := chat.NewPendingText("p1", "two")
	store.Append("p1", first)
	store.Append("p1", second)

	confirmed := first
	confirmed.ID = "srv-1"
	confirmed.Delivery = chat.DeliveryConfirmed

	if !store.Replace("p1", first.ID, confirmed) {
		t.Fatal("Replace reported no match")
	}

	thread := store.Get("p1")
	if thread[0].ID != "srv-1" {
		t.Fatalf("confirmed message must stay at position 0, got %s", thread[0].ID)
	}
	if thread[1].ID != second.ID {
		t.Fatalf("unrelated message moved: %s", thread[1].ID)
	}
}

func TestStoreReplaceUnknownLocalID(t *testing.T) {
	store := conversation.NewStore(nil)
	store.Append("p1", chat.NewPendingText("p1", "one"))

	if store.Replace("p1", "local-unknown", chat.Message{ID: "srv"}) {
		t.Fatal("Replace must not match a foreign local id")
	}
	if got := store.Len("p1"); got != 1 {
		t.Fatalf("thread mutated on failed replace: len=%d", got)
	}
}

func TestStoreRemoveRollsBack(t *testing.T) {
	store := conversation.NewStore(nil)

	echo := chat.NewPendingText("p1", "doomed")
	store.Append("p1", echo)

	if !store.Remove("p1", echo.ID) {
		t.Fatal("Remove reported no match")
	}
	if store.Len("p1") != 0 {
		t.Fatalf("expected empty thread, got %d", store.Len("p1"))
	}
	if store.HasPending("p1") {
		t.Fatal("no pending entries should remain after rollback")
	}
}

func TestStoreReplaceAllCopiesHistory(t *testing.T) {
	store := conversation.NewStore(nil)
	store.Append("tara-ai", chat.NewPendingText("tara-ai", "stale"))

	history := []chat.Message{
		{ID: "srv-1", PartnerID: "tara-ai", Sender: chat.SenderUser, Body: "hello"},
		{ID: "srv-2", PartnerID: "tara-ai", Sender: chat.SenderPartner, Body: "hi there"},
	}
	store.ReplaceAll("tara-ai", history)

	// Mutating the caller's slice must not leak into the store.
	history[0].Body = "mutated"

	thread := store.Get("tara-ai")
	if len(thread) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(thread))
	}
	if thread[0].Body != "hello" {
		t.Fatalf("store aliased the caller's history slice: %q", thread[0].Body)
	}
}
