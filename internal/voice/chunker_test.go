package voice

import (
	"strings"
	"testing"
)

func feedAll(c *Chunker, deltas ...string) []string {
	var out []string
	for _, d := range deltas {
		out = append(out, c.Feed(d)...)
	}
	if rest := c.Flush(); rest != "" {
		out = append(out, rest)
	}
	return out
}

func TestChunkerSentenceBoundaries(t *testing.T) {
	chunks := feedAll(NewChunker(ChunkModeSentence),
		"Your fleet has four ships. ", "Two are docked at Jita. ", "One needs repairs.")

	want := []string{
		"Your fleet has four ships.",
		"Two are docked at Jita.",
		"One needs repairs.",
	}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %v", len(want), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Fatalf("chunk %d: got %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestChunkerSplitsMidDelta(t *testing.T) {
	c := NewChunker(ChunkModeSentence)
	chunks := c.Feed("The balance is fine. The market is ")
	if len(chunks) != 1 || chunks[0] != "The balance is fine." {
		t.Fatalf("expected first sentence, got %v", chunks)
	}
	chunks = c.Feed("quiet today. ")
	if len(chunks) != 1 || chunks[0] != "The market is quiet today." {
		t.Fatalf("expected second sentence, got %v", chunks)
	}
}

func TestChunkerAbbreviationsDoNotSplit(t *testing.T) {
	chunks := feedAll(NewChunker(ChunkModeSentence),
		"Dr. Reyes left a message, e.g. the docking fees went up. ")
	if len(chunks) != 1 {
		t.Fatalf("abbreviation split the sentence: %v", chunks)
	}
	if !strings.Contains(chunks[0], "Dr. Reyes") {
		t.Fatalf("unexpected chunk: %q", chunks[0])
	}
}

func TestChunkerShortFragmentMergesForward(t *testing.T) {
	chunks := feedAll(NewChunker(ChunkModeSentence),
		"Done. The transfer cleared a moment ago. ")
	if len(chunks) != 1 {
		t.Fatalf("short fragment should merge forward, got %v", chunks)
	}
	if chunks[0] != "Done. The transfer cleared a moment ago." {
		t.Fatalf("unexpected merge: %q", chunks[0])
	}
}

func TestChunkerPunctuationRuns(t *testing.T) {
	chunks := feedAll(NewChunker(ChunkModeSentence),
		"Are you sure about that?! It will cost everything you have. ")
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %v", chunks)
	}
	if chunks[0] != "Are you sure about that?!" {
		t.Fatalf("unexpected first chunk: %q", chunks[0])
	}
}

func TestChunkerFlushEmitsTrailingText(t *testing.T) {
	c := NewChunker(ChunkModeSentence)
	if out := c.Feed("No terminal punctuation here"); len(out) != 0 {
		t.Fatalf("nothing should emit before flush, got %v", out)
	}
	if rest := c.Flush(); rest != "No terminal punctuation here" {
		t.Fatalf("unexpected flush: %q", rest)
	}
	if rest := c.Flush(); rest != "" {
		t.Fatalf("second flush must be empty, got %q", rest)
	}
}

func TestChunkerParagraphMode(t *testing.T) {
	chunks := feedAll(NewChunker(ChunkModeParagraph),
		"First paragraph. Still the first.\n\nSecond paragraph here.")
	if len(chunks) != 2 {
		t.Fatalf("expected 2 paragraphs, got %v", chunks)
	}
	if chunks[0] != "First paragraph. Still the first." {
		t.Fatalf("unexpected paragraph: %q", chunks[0])
	}
}

func TestChunkerParagraphIndentBoundary(t *testing.T) {
	// A single newline followed by two spaces also splits paragraphs.
	chunks := feedAll(NewChunker(ChunkModeParagraph),
		"First paragraph ends here.\n  The indented line opens the second.")
	if len(chunks) != 2 {
		t.Fatalf("expected 2 paragraphs, got %v", chunks)
	}
	if chunks[0] != "First paragraph ends here." {
		t.Fatalf("unexpected paragraph: %q", chunks[0])
	}
	if chunks[1] != "The indented line opens the second." {
		t.Fatalf("unexpected paragraph: %q", chunks[1])
	}
}

func TestChunkerForceSplitsOversizedRun(t *testing.T) {
	long := strings.Repeat("word ", 200) // 1000 chars, no terminal punctuation
	c := NewChunker(ChunkModeSentence)
	chunks := c.Feed(long)
	if len(chunks) == 0 {
		t.Fatalf("oversized run must force-split")
	}
	for _, chunk := range chunks {
		if len(chunk) > maxChunkChars {
			t.Fatalf("chunk exceeds limit: %d chars", len(chunk))
		}
		if strings.HasSuffix(chunk, " ") || !strings.HasSuffix(chunk, "word") {
			t.Fatalf("force split should land on whitespace: %q", chunk)
		}
	}
	if rest := c.Flush(); rest == "" {
		t.Fatalf("expected a remainder below the limit")
	}
}

func TestChunkerUnknownModeFallsBack(t *testing.T) {
	c := NewChunker("verse")
	if c.mode != ChunkModeSentence {
		t.Fatalf("unknown mode should fall back to sentence, got %q", c.mode)
	}
}
