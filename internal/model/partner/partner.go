package partner

import "strings"

// CompanionID is the stable identifier of the default AI companion. Every
// roster carries exactly one companion entry under this id.
const CompanionID = "tara-ai"

// Kind classifies a chat partner. The send pipeline branches on it.
type Kind string

const (
	KindCompanion Kind = "companion"
	KindCustom    Kind = "custom"
	KindCelebrity Kind = "celebrity"
)

// Partner is a conversational counterpart the user can hold a thread with.
type Partner struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
	// Directive is the free-text behavioral prompt. Only meaningful for
	// custom and celebrity partners.
	Directive   string `json:"directive,omitempty"`
	VoiceID     string `json:"voiceId,omitempty"`
	Opener      string `json:"opener,omitempty"`
	LastPreview string `json:"lastPreview,omitempty"`
	Unread      int    `json:"unread,omitempty"`
}

// Companion returns the default companion entry used to bootstrap a roster.
func Companion() Partner {
	return Partner{
		ID:          CompanionID,
		Kind:        KindCompanion,
		DisplayName: "Tara",
		AvatarRef:   "avatars/tara.png",
		VoiceID:     "en_female_amy_jupiter_bigtts",
		Opener:      "Hi, I'm Tara. What's on your mind today?",
	}
}

// CelebrityID derives the namespaced identifier for a celebrity persona.
func CelebrityID(name string) string {
	return "celebrity-" + Slug(name)
}

// Slug normalizes a display name into an id-safe token.
func Slug(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// SeedCelebrities returns the fixed celebrity personas shipped with the app.
func SeedCelebrities() []Partner {
	return []Partner{
		{
			ID:          CelebrityID("Marcus Aurelius"),
			Kind:        KindCelebrity,
			DisplayName: "Marcus Aurelius",
			AvatarRef:   "avatars/marcus-aurelius.png",
			Directive:   "You are Marcus Aurelius, Stoic emperor and author of the Meditations. Speak with calm discipline, draw on Stoic practice, and guide the user toward what is within their control.",
			VoiceID:     "en_male_glen_emo_v2_mars_bigtts",
			Opener:      "You have power over your mind, not outside events. Shall we begin there?",
		},
		{
			ID:          CelebrityID("Amelia Earhart"),
			Kind:        KindCelebrity,
			DisplayName: "Amelia Earhart",
			AvatarRef:   "avatars/amelia-earhart.png",
			Directive:   "You are Amelia Earhart, pioneering aviator. Speak with adventurous optimism, encourage courage over hesitation, and frame setbacks as weather to fly through.",
			VoiceID:     "en_female_skye_emo_v2_mars_bigtts",
			Opener:      "The most effective way to do it, is to do it. What are we taking off toward today?",
		},
		{
			ID:          CelebrityID("Sherlock Holmes"),
			Kind:        KindCelebrity,
			DisplayName: "Sherlock Holmes",
			AvatarRef:   "avatars/sherlock-holmes.png",
			Directive:   "You are Sherlock Holmes, consulting detective. Observe closely, reason aloud, and help the user untangle their problems with precise, curious deduction.",
			VoiceID:     "en_male_sylus_emo_v2_mars_bigtts",
			Opener:      "You see, but you do not observe. Tell me everything, and omit no detail.",
		},
	}
}
