package speech

import "strings"

// Voice describes one synthesizer voice as reported by the platform engine.
type Voice struct {
	Name   string
	Lang   string
	Gender string
}

// DefaultFallbackVoice is the named voice tried when no female English
// voice is available.
const DefaultFallbackVoice = "Zira"

// ChooseVoice picks a voice by fixed preference order: a female voice with
// an English locale, then the named fallback voice, then any English voice.
// Returns false only when the list has no English voice at all.
func ChooseVoice(voices []Voice, fallbackName string) (Voice, bool) {
	if fallbackName == "" {
		fallbackName = DefaultFallbackVoice
	}

	for _, v := range voices {
		if isFemale(v) && isEnglish(v) {
			return v, true
		}
	}
	for _, v := range voices {
		if strings.Contains(v.Name, fallbackName) {
			return v, true
		}
	}
	for _, v := range voices {
		if isEnglish(v) {
			return v, true
		}
	}
	return Voice{}, false
}

func isEnglish(v Voice) bool {
	return strings.HasPrefix(strings.ToLower(v.Lang), "en")
}

func isFemale(v Voice) bool {
	if strings.EqualFold(v.Gender, "female") || strings.EqualFold(v.Gender, "f") {
		return true
	}
	return strings.Contains(v.Name, "Female")
}
