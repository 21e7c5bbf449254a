package chunking

import (
	"strings"
	"testing"
)

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	s := NewSplitter(100, 10)
	got := s.Split("  Every person who commits murder.  ")
	if len(got) != 1 || got[0] != "Every person who commits murder." {
		t.Fatalf("unexpected chunks: %q", got)
	}
}

func TestSplitEmptyText(t *testing.T) {
	if got := NewSplitter(10, 0).Split("   "); got != nil {
		t.Fatalf("expected nil, got %q", got)
	}
}

func TestSplitBreaksOnWhitespace(t *testing.T) {
	s := NewSplitter(12, 0)
	got := s.Split("alpha beta gamma delta epsilon")
	for _, chunk := range got {
		if len([]rune(chunk)) > 12 {
			t.Fatalf("chunk exceeds size: %q", chunk)
		}
		for _, word := range strings.Fields(chunk) {
			if !strings.Contains("alpha beta gamma delta epsilon", word) {
				t.Fatalf("word was split: %q in %q", word, got)
			}
		}
	}
	if strings.Join(got, " ") != "alpha beta gamma delta epsilon" {
		t.Fatalf("chunks do not cover text: %q", got)
	}
}

func TestSplitHardCutsLongWords(t *testing.T) {
	s := NewSplitter(4, 0)
	got := s.Split("abcdefghij")
	if strings.Join(got, "") != "abcdefghij" || len(got) != 3 {
		t.Fatalf("unexpected chunks: %q", got)
	}
}

func TestSplitOverlapRepeatsTail(t *testing.T) {
	s := NewSplitter(4, 2)
	got := s.Split("abcdefgh")
	want := []string{"abcd", "cdef", "efgh"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestNewSplitterClampsOverlap(t *testing.T) {
	s := NewSplitter(8, 8)
	if s.Overlap != 2 {
		t.Fatalf("expected overlap clamped to 2, got %d", s.Overlap)
	}
	if NewSplitter(0, 0).ChunkSize != DefaultChunkSize {
		t.Fatalf("expected default chunk size")
	}
}
