package voice

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunk modes supported by the session.
const (
	ChunkModeSentence  = "sentence"
	ChunkModeParagraph = "paragraph"
)

const (
	minChunkChars = 10
	maxChunkChars = 500
)

// Abbreviations whose trailing period does not end a sentence.
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {},
	"e.g": {}, "i.e": {}, "etc": {}, "vs": {},
	"jr": {}, "sr": {}, "inc": {}, "ltd": {}, "co": {},
	"st": {}, "no": {},
}

// Chunker slices a streamed reply into speakable units. Sentence mode
// yields on terminal punctuation followed by whitespace, paragraph mode
// on a blank line or a newline followed by at least two spaces of
// indentation. Fragments shorter than minChunkChars merge forward into
// the next unit; anything past maxChunkChars is force-split so a single
// runaway unit cannot stall synthesis.
type Chunker struct {
	mode    string
	pending string
}

// NewChunker builds a chunker for the given mode, defaulting to sentence.
func NewChunker(mode string) *Chunker {
	if mode != ChunkModeParagraph {
		mode = ChunkModeSentence
	}
	return &Chunker{mode: mode}
}

// Feed appends a streamed text delta and returns any chunks that became
// complete.
func (c *Chunker) Feed(delta string) []string {
	if delta == "" {
		return nil
	}
	c.pending += delta

	var out []string
	out = append(out, c.drainBoundaries()...)

	for utf8.RuneCountInString(c.pending) > maxChunkChars {
		head, rest := forceSplit(c.pending)
		out = append(out, head)
		c.pending = rest
	}
	return out
}

// Flush returns whatever text remains, regardless of length. Call it once
// the stream ends.
func (c *Chunker) Flush() string {
	rest := strings.TrimSpace(c.pending)
	c.pending = ""
	return rest
}

// drainBoundaries emits every complete unit currently in the buffer. A
// unit below the minimum length stays merged with the text after it.
func (c *Chunker) drainBoundaries() []string {
	var out []string
	from := 0
	for {
		end := c.nextBoundary(from)
		if end < 0 {
			break
		}
		candidate := strings.TrimSpace(c.pending[:end])
		if utf8.RuneCountInString(candidate) < minChunkChars {
			from = end
			continue
		}
		out = append(out, candidate)
		c.pending = strings.TrimLeft(c.pending[end:], " \t\n\r")
		from = 0
	}
	return out
}

// nextBoundary returns the index just past the next unit boundary at or
// after from, or -1 when the buffer holds no complete unit yet.
func (c *Chunker) nextBoundary(from int) int {
	if c.mode == ChunkModeParagraph {
		s := c.pending
		for i := from; i < len(s); i++ {
			if s[i] != '\n' {
				continue
			}
			if i+1 < len(s) && s[i+1] == '\n' {
				return i + 2
			}
			if i+2 < len(s) && s[i+1] == ' ' && s[i+2] == ' ' {
				return i + 3
			}
		}
		return -1
	}

	s := c.pending
	for i := from; i < len(s); i++ {
		if s[i] != '.' && s[i] != '!' && s[i] != '?' {
			continue
		}
		// Swallow punctuation runs like "?!" and "...".
		end := i + 1
		for end < len(s) && (s[end] == '.' || s[end] == '!' || s[end] == '?') {
			end++
		}
		if end >= len(s) {
			// More text may still arrive; only Flush closes this unit.
			return -1
		}
		if !isSpaceByte(s[end]) {
			i = end - 1
			continue
		}
		if s[i] == '.' && isAbbreviation(s[:i]) {
			i = end - 1
			continue
		}
		return end
	}
	return -1
}

// isAbbreviation reports whether the text ends in a word whose trailing
// period is part of an abbreviation rather than a sentence end.
func isAbbreviation(before string) bool {
	j := len(before)
	for j > 0 {
		r, size := utf8.DecodeLastRuneInString(before[:j])
		if !unicode.IsLetter(r) && r != '.' {
			break
		}
		j -= size
	}
	word := strings.ToLower(strings.Trim(before[j:], "."))
	if word == "" {
		return false
	}
	_, ok := abbreviations[word]
	return ok
}

// forceSplit cuts an oversized buffer at the best available point: the
// last sentence end inside the window, else the last whitespace, else a
// hard cut at the window edge.
func forceSplit(s string) (string, string) {
	window := byteOffsetForRunes(s, maxChunkChars)

	cut := -1
	for i := window - 1; i > 0; i-- {
		if (s[i-1] == '.' || s[i-1] == '!' || s[i-1] == '?') && isSpaceByte(s[i]) {
			cut = i
			break
		}
	}
	if cut < 0 {
		for i := window - 1; i > 0; i-- {
			if isSpaceByte(s[i]) {
				cut = i
				break
			}
		}
	}
	if cut < 0 {
		cut = window
	}

	head := strings.TrimSpace(s[:cut])
	rest := strings.TrimLeft(s[cut:], " \t\n\r")
	return head, rest
}

// byteOffsetForRunes returns the byte index after n runes, clamped to the
// string length.
func byteOffsetForRunes(s string, n int) int {
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
