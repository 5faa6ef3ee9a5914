package retrieval

import "strings"

// looseTokenCap bounds the fallback tokenizer so greeting-like queries can't
// blow up the scoring loop.
const looseTokenCap = 20

// Lightweight bilingual stop sets. These only need to catch the filler words
// of short questions, not be exhaustive.
var stopThai = map[string]struct{}{
	"ที่": {}, "และ": {}, "หรือ": {}, "คือ": {}, "เป็น": {}, "ได้": {}, "ใน": {}, "ของ": {},
	"กับ": {}, "จาก": {}, "ให้": {}, "แล้ว": {}, "ยัง": {}, "ไม่": {}, "มี": {}, "จะ": {},
	"ก็": {}, "มา": {}, "ไป": {}, "ทำ": {}, "การ": {}, "ว่า": {}, "นี้": {}, "นั้น": {},
	"ค่ะ": {}, "ครับ": {}, "คับ": {}, "ๆ": {}, "ๆๆ": {},
}

var stopEnglish = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "is": {}, "are": {}, "was": {},
	"were": {}, "to": {}, "of": {}, "in": {}, "on": {}, "for": {}, "with": {}, "from": {},
	"as": {}, "at": {}, "by": {}, "what": {}, "how": {}, "why": {}, "can": {}, "could": {},
	"should": {}, "would": {}, "do": {}, "does": {}, "did": {}, "i": {}, "you": {},
	"we": {}, "they": {}, "it": {},
}

// tokenize splits s into lowercase terms over the Latin/Thai/digit character
// class, dropping single-character tokens (except digits) and stop words.
func tokenize(s string) []string {
	var out []string
	for _, w := range splitWords(s) {
		if len([]rune(w)) <= 1 && !isDigits(w) {
			continue
		}
		if isDigits(w) {
			out = append(out, w)
			continue
		}
		if _, ok := stopThai[w]; ok {
			continue
		}
		if _, ok := stopEnglish[w]; ok {
			continue
		}
		out = append(out, w)
	}
	return out
}

// tokenizeLoose is the degradation path for queries the strict tokenizer
// empties out (all stop words, greetings): no stop filtering, capped length.
func tokenizeLoose(s string) []string {
	words := splitWords(s)
	if len(words) > looseTokenCap {
		words = words[:looseTokenCap]
	}
	return words
}

// splitWords walks s emitting maximal runs of Latin letters, Thai
// characters and digits, lowercased.
func splitWords(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range s {
		if isWordRune(r) {
			cur = append(cur, toLower(r))
			continue
		}
		flush()
	}
	flush()
	return words
}

// isWordRune covers A-Z, a-z, 0-9 and the Thai block ก-๙ (consonants,
// vowels, tone marks and Thai digits), matching the source character class.
func isWordRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r >= 'ก' && r <= '๙':
		return true
	}
	return false
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

// isDigits accepts ASCII and Thai digit runs.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < '๐' || r > '๙') {
			return false
		}
	}
	return true
}

// termFreq builds the term-frequency multiset used by the scorer.
func termFreq(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

// firstOccurrence finds the byte offset in content of the earliest match of
// any term, scanning case-insensitively over word runs. Returns -1 when no
// term occurs.
func firstOccurrence(content string, terms map[string]int) int {
	lower := strings.ToLower(content)
	best := -1
	for term := range terms {
		if idx := strings.Index(lower, term); idx >= 0 && (best == -1 || idx < best) {
			best = idx
		}
	}
	return best
}
