package conversation

import (
	"sync"

	"github.com/tarawell/tara-companion/backend/internal/model/chat"
)

// PreviewSink receives the new tail message after every mutation so the
// roster can refresh its last-message previews. The partner roster satisfies
// this.
type PreviewSink interface {
	UpdatePreview(partnerID string, tail chat.Message)
}

// Store is the single source of truth for message threads: an in-memory
// mapping from partner id to its ordered message sequence. All operations
// are partner-scoped; mutations never reorder existing entries.
type Store struct {
	mu      sync.RWMutex
	threads map[string][]chat.Message
	preview PreviewSink
}

// NewStore builds an empty store. The sink may be nil (tests).
func NewStore(preview PreviewSink) *Store {
	return &Store{
		threads: make(map[string][]chat.Message),
		preview: preview,
	}
}

// Get returns a copy of the partner's thread, empty if unknown.
func (s *Store) Get(partnerID string) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	thread := s.threads[partnerID]
	out := make([]chat.Message, len(thread))
	copy(out, thread)
	return out
}

// Len returns the number of messages held for a partner.
func (s *Store) Len(partnerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads[partnerID])
}

// Append adds a message to the end of the partner's thread, creating the
// thread implicitly for an unknown partner.
func (s *Store) Append(partnerID string, msg chat.Message) {
	s.mu.Lock()
	if _, ok := s.threads[partnerID]; !ok {
		s.threads[partnerID] = make([]chat.Message, 0, 16)
	}
	s.threads[partnerID] = append(s.threads[partnerID], msg)
	s.mu.Unlock()

	s.notify(partnerID, msg)
}

// Replace swaps the message with the given local id for its server-confirmed
// form, in place. Position within the thread is preserved.
func (s *Store) Replace(partnerID, localID string, serverMsg chat.Message) bool {
	s.mu.Lock()
	thread := s.threads[partnerID]
	replaced := false
	for i := range thread {
		if thread[i].ID == localID {
			thread[i] = serverMsg
			replaced = true
			break
		}
	}
	var tail chat.Message
	if n := len(thread); replaced && n > 0 {
		tail = thread[n-1]
	}
	s.mu.Unlock()

	if replaced {
		s.notify(partnerID, tail)
	}
	return replaced
}

// Remove deletes the message with the given local id. Used for rollback of
// failed optimistic sends.
func (s *Store) Remove(partnerID, localID string) bool {
	s.mu.Lock()
	thread := s.threads[partnerID]
	removed := false
	for i := range thread {
		if thread[i].ID == localID {
			s.threads[partnerID] = append(thread[:i], thread[i+1:]...)
			removed = true
			break
		}
	}
	var tail chat.Message
	var hasTail bool
	if n := len(s.threads[partnerID]); removed && n > 0 {
		tail = s.threads[partnerID][n-1]
		hasTail = true
	}
	s.mu.Unlock()

	if removed && hasTail {
		s.notify(partnerID, tail)
	}
	return removed
}

// ReplaceAll substitutes the partner's entire thread with the
// server-returned history. This is the companion-branch reconciliation
// strategy: always trust server state, at O(history) per turn.
func (s *Store) ReplaceAll(partnerID string, history []chat.Message) {
	thread := make([]chat.Message, len(history))
	copy(thread, history)

	s.mu.Lock()
	s.threads[partnerID] = thread
	s.mu.Unlock()

	if len(thread) > 0 {
		s.notify(partnerID, thread[len(thread)-1])
	}
}

// HasPending reports whether any message in the partner's thread still
// awaits reconciliation.
func (s *Store) HasPending(partnerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.threads[partnerID] {
		if m.IsPending() {
			return true
		}
	}
	return false
}

func (s *Store) notify(partnerID string, tail chat.Message) {
	if s.preview != nil {
		s.preview.UpdatePreview(partnerID, tail)
	}
}
