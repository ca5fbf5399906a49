package partner

import (
	"sync"
	"unicode/utf8"

	"github.com/tarawell/tara-companion/backend/internal/model/chat"
)

const previewLimit = 80

// Roster owns the set of open chat partners and the active selection. It
// holds no message data; previews are pushed in by the message store.
type Roster struct {
	mu      sync.RWMutex
	entries []Partner
	index   map[string]int
	active  string
}

// NewRoster bootstraps a roster with the default companion as the seed
// entry, followed by any preloaded partners (celebrity seeds, persisted
// custom personas).
func NewRoster(preload ...Partner) *Roster {
	r := &Roster{index: make(map[string]int)}
	r.insert(Companion())
	for _, p := range preload {
		if _, ok := r.index[p.ID]; ok {
			continue
		}
		r.insert(p)
	}
	r.active = CompanionID
	return r
}

func (r *Roster) insert(p Partner) {
	r.index[p.ID] = len(r.entries)
	r.entries = append(r.entries, p)
}

// List returns all partners in insertion order, companion first.
func (r *Roster) List() []Partner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Partner, len(r.entries))
	copy(out, r.entries)
	return out
}

// Find looks up a partner by id.
func (r *Roster) Find(id string) (Partner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return Partner{}, false
	}
	return r.entries[i], true
}

// Upsert adds a partner and makes it active. Adding an id that already
// exists is idempotent: no duplicate entry is created, the existing entry is
// activated instead. The stored partner is returned.
func (r *Roster) Upsert(p Partner) Partner {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.index[p.ID]; ok {
		r.activate(r.entries[i].ID)
		return r.entries[i]
	}

	r.insert(p)
	r.activate(p.ID)
	return p
}

// SetActive switches the active partner and clears its unread count.
func (r *Roster) SetActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[id]; !ok {
		return false
	}
	r.activate(id)
	return true
}

func (r *Roster) activate(id string) {
	r.active = id
	if i, ok := r.index[id]; ok {
		r.entries[i].Unread = 0
	}
}

// Active returns the currently selected partner id.
func (r *Roster) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// UpdatePreview refreshes a partner's last-message preview from the new tail
// of its thread. Partner-sent tails on inactive partners bump the unread
// count. Unknown ids are ignored; the roster, not the store, owns partner
// lifecycle.
func (r *Roster) UpdatePreview(partnerID string, tail chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[partnerID]
	if !ok {
		return
	}

	r.entries[i].LastPreview = truncatePreview(tail.Body)
	if tail.Sender == chat.SenderPartner && r.active != partnerID {
		r.entries[i].Unread++
	}
}

func truncatePreview(body string) string {
	if utf8.RuneCountInString(body) <= previewLimit {
		return body
	}
	runes := []rune(body)
	return string(runes[:previewLimit-1]) + "…"
}
