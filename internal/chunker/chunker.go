// Package chunker splits normalized document text into overlapping,
// boundary-aware segments used as retrieval units.
package chunker

import (
	"regexp"
	"strings"
)

// DefaultChunkSize is the target number of characters per chunk.
const DefaultChunkSize = 900

// DefaultOverlap is the number of characters shared between adjacent chunks.
const DefaultOverlap = 150

// breakWindow bounds how far around the target cut point a boundary is
// searched for.
const breakWindow = 180

var (
	crlfRe     = regexp.MustCompile(`\r\n?`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// boundary bonuses, in descending priority. A paragraph break close to the
// target beats a plain space right on it.
const (
	bonusParagraph  = 40
	bonusNewline    = 25
	bonusSentence   = 15
	bonusWhitespace = 5
)

// Chunk splits text into ordered, non-empty segments of roughly chunkSize
// runes with the given overlap. Cut points prefer paragraph breaks, then
// line breaks, then sentence-ending punctuation (Latin or Thai/CJK style),
// then any whitespace; only when none is found near the target does it cut
// hard. Concatenating the non-overlapping portions reconstructs the
// normalized input.
func Chunk(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 6
	}

	t := Normalize(text)
	if t == "" {
		return nil
	}

	runes := []rune(t)
	n := len(runes)

	var out []string
	i := 0
	for i < n {
		targetEnd := i + chunkSize
		if targetEnd > n {
			targetEnd = n
		}
		end := targetEnd
		if targetEnd < n {
			end = bestBreak(runes, i, targetEnd)
		}

		if c := strings.TrimSpace(string(runes[i:end])); c != "" {
			out = append(out, c)
		}

		if end >= n {
			break
		}
		// Back up by the overlap but always make forward progress.
		next := end - overlap
		if next < i+1 {
			next = i + 1
		}
		i = next
	}
	return out
}

// Normalize collapses line endings to \n and runs of 3+ blank lines to a
// single blank line, then trims surrounding whitespace.
func Normalize(text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return ""
	}
	t = crlfRe.ReplaceAllString(t, "\n")
	t = blankRunRe.ReplaceAllString(t, "\n\n")
	return t
}

// bestBreak picks the cut point inside [targetEnd-window, targetEnd+window]
// scoring each candidate by boundary bonus minus distance from the target.
// Returns targetEnd unchanged when the neighborhood has no boundary at all.
func bestBreak(runes []rune, start, targetEnd int) int {
	n := len(runes)
	lo := targetEnd - breakWindow
	if min := start + 50; lo < min {
		lo = min
	}
	hi := targetEnd + breakWindow
	if hi > n {
		hi = n
	}
	if lo >= hi {
		return targetEnd
	}

	bestScore := 0
	bestBonus := 0
	bestPos := -1
	consider := func(pos, bonus int) {
		dist := pos - targetEnd
		if dist < 0 {
			dist = -dist
		}
		score := bonus - dist
		// Equal scores break toward the stronger boundary type.
		if bestPos == -1 || score > bestScore || (score == bestScore && bonus > bestBonus) {
			bestScore = score
			bestBonus = bonus
			bestPos = pos
		}
	}

	for p := lo; p < hi; p++ {
		r := runes[p]
		switch {
		case r == '\n' && isBlankRun(runes, p):
			consider(p, bonusParagraph)
		case r == '\n':
			consider(p, bonusNewline)
		case r == '.' && p+1 < n && isSpace(runes[p+1]):
			consider(p, bonusSentence)
		case r == '。' || r == '！' || r == '？':
			consider(p, bonusSentence)
		case isSpace(r):
			consider(p, bonusWhitespace)
		}
	}

	if bestPos == -1 {
		return targetEnd
	}
	// Cut just after the boundary rune so terminators stay with their chunk.
	cut := bestPos + 1
	if cut > n {
		cut = n
	}
	return cut
}

// isBlankRun reports whether the newline at p starts a blank line, i.e. only
// whitespace separates it from the next newline.
func isBlankRun(runes []rune, p int) bool {
	for q := p + 1; q < len(runes); q++ {
		r := runes[q]
		if r == '\n' {
			return true
		}
		if !isSpace(r) {
			return false
		}
	}
	return false
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}
