package speech

import "strings"

// resolveSpeakerCandidates turns a requested voice into an ordered list of
// provider speaker ids. Aliases from persona seeds map to real speakers;
// the configured default is appended as a fallback.
func resolveSpeakerCandidates(requested, fallback string) []string {
	aliasMap := map[string]string{
		"companion":            "en_female_amy_jupiter_bigtts",
		"stoic-mentor":         "en_male_glen_emo_v2_mars_bigtts",
		"aviator":              "en_female_skye_emo_v2_mars_bigtts",
		"consulting-detective": "en_male_sylus_emo_v2_mars_bigtts",
		"default":              fallback,
		"en_default":           "en_female_amy_jupiter_bigtts",
	}

	var candidates []string

	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if mapped, ok := aliasMap[strings.ToLower(s)]; ok {
			s = mapped
		}
		for _, existing := range candidates {
			if strings.EqualFold(existing, s) {
				return
			}
		}
		candidates = append(candidates, s)
	}

	add(requested)
	add(fallback)

	if len(candidates) == 0 {
		return []string{fallback}
	}

	return candidates
}

// resolveResourceCandidates picks the resource ids to try for a speaker.
// Cloned voices (S_ prefix) need the megatts resource; bigtts/seed families
// prefer the seed resource.
func resolveResourceCandidates(voice string) []string {
	const (
		defaultResource = "volc.service_type.10029"
		megaResource    = "volc.megatts.default"
		seedResource    = "seed-tts-2.0"
	)

	voice = strings.TrimSpace(voice)
	if voice == "" {
		return []string{defaultResource, seedResource}
	}

	if strings.HasPrefix(voice, "S_") {
		return []string{megaResource}
	}

	normalized := strings.ToLower(voice)
	seedHints := []string{
		"bigtts",
		"seed",
		"megatts",
		"uranus",
		"venus",
		"jupiter",
		"saturn",
		"neptune",
		"mercury",
		"pluto",
		"mars",
	}

	for _, hint := range seedHints {
		if strings.Contains(normalized, hint) {
			return []string{seedResource, defaultResource}
		}
	}

	return []string{defaultResource, seedResource}
}
