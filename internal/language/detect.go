// Package language classifies text as Thai or English by character-class
// ratio. It exists to pick the response language for generated answers, not
// to be a general language identifier.
package language

// Lang is a supported response language.
type Lang string

const (
	Thai    Lang = "th"
	English Lang = "en"
)

// Detect classifies text by comparing Thai and Latin letter counts.
// No Thai letters means English; no Latin letters (with at least one Thai)
// means Thai; otherwise the dominant class wins, with ties going to Thai so
// short mixed questions don't flip to English.
func Detect(text string) Lang {
	var thai, latin int
	for _, r := range text {
		switch {
		case r >= 'ก' && r <= 'ฮ':
			thai++
		case (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z'):
			latin++
		}
	}
	if thai == 0 {
		return English
	}
	if latin == 0 {
		return Thai
	}
	if thai >= latin {
		return Thai
	}
	return English
}

// Directive returns the instruction line appended to prompts so the model
// answers in the detected language.
func (l Lang) Directive() string {
	if l == Thai {
		return "Write in Thai."
	}
	return "Write in English."
}
