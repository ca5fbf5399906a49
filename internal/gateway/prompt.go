package gateway

import (
	"fmt"
	"strings"

	"github.com/tarawell/tara-companion/backend/internal/model/partner"
)

const companionSystemPrompt = `You are Tara, a warm, grounded wellness companion. You listen closely,
reflect feelings back without judgement, and offer small, practical
suggestions for breathing, rest, movement, and self-kindness. You are not a
therapist and you say so when a topic needs professional care. Keep replies
short and conversational.`

// buildSystemPrompt assembles the behavioral prompt for one partner. Custom
// and celebrity partners are driven entirely by their directive; the
// companion has a fixed role.
func buildSystemPrompt(p partner.Partner, user UserContext) string {
	var b strings.Builder

	if p.Kind == partner.KindCompanion || strings.TrimSpace(p.Directive) == "" {
		b.WriteString(companionSystemPrompt)
	} else {
		b.WriteString(p.Directive)
		b.WriteString("\n\nStay in character as ")
		b.WriteString(p.DisplayName)
		b.WriteString(" at all times. Keep replies short and conversational.")
	}

	if name := strings.TrimSpace(user.DisplayName); name != "" {
		fmt.Fprintf(&b, "\n\nThe user's name is %s.", name)
	}
	if p.Opener != "" {
		fmt.Fprintf(&b, "\nYour usual opening line, for tone reference: %q", p.Opener)
	}

	return b.String()
}
