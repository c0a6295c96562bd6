package rag

import (
	"strings"
	"testing"
)

func TestChunkText(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		if chunks := ChunkText("", 1200, 200); chunks != nil {
			t.Errorf("Expected nil for empty text, got %d chunks", len(chunks))
		}
	})

	t.Run("short text is one chunk", func(t *testing.T) {
		chunks := ChunkText("hello world", 1200, 200)
		if len(chunks) != 1 || chunks[0] != "hello world" {
			t.Errorf("Expected single chunk, got %v", chunks)
		}
	})

	t.Run("windows overlap", func(t *testing.T) {
		text := strings.Repeat("a", 90) + strings.Repeat("b", 90)
		chunks := ChunkText(text, 100, 20)

		if len(chunks) != 3 {
			t.Fatalf("Expected 3 chunks, got %d", len(chunks))
		}
		for i := 1; i < len(chunks); i++ {
			prevTail := chunks[i-1][len(chunks[i-1])-20:]
			if !strings.HasPrefix(chunks[i], prevTail) {
				t.Errorf("Chunk %d does not start with the previous chunk's tail", i)
			}
		}
	})

	t.Run("last window may be shorter", func(t *testing.T) {
		chunks := ChunkText(strings.Repeat("x", 150), 100, 20)
		if len(chunks) != 2 {
			t.Fatalf("Expected 2 chunks, got %d", len(chunks))
		}
		if len(chunks[0]) != 100 {
			t.Errorf("Expected full first window, got %d chars", len(chunks[0]))
		}
		if len(chunks[1]) != 70 {
			t.Errorf("Expected 70-char tail window, got %d chars", len(chunks[1]))
		}
	})

	t.Run("multi-byte runes are not split", func(t *testing.T) {
		text := strings.Repeat("é", 150)
		chunks := ChunkText(text, 100, 20)
		for i, c := range chunks {
			if strings.ContainsRune(c, '�') {
				t.Errorf("Chunk %d contains a broken rune", i)
			}
		}
	})

	t.Run("exact window length terminates", func(t *testing.T) {
		chunks := ChunkText(strings.Repeat("x", 100), 100, 20)
		if len(chunks) != 1 {
			t.Errorf("Expected exactly one chunk for window-sized text, got %d", len(chunks))
		}
	})

	t.Run("overlap at least the window is clamped", func(t *testing.T) {
		// A degenerate overlap must not produce a non-positive step.
		chunks := ChunkText(strings.Repeat("x", 300), 100, 100)
		if len(chunks) == 0 {
			t.Fatal("Expected chunks for non-empty text")
		}
		for i, c := range chunks {
			if len(c) > 100 {
				t.Errorf("Chunk %d exceeds the window: %d chars", i, len(c))
			}
		}
		// Clamped overlap is window/6, so adjacent windows still share text.
		if len(chunks) < 2 {
			t.Fatalf("Expected multiple windows over 300 chars, got %d", len(chunks))
		}
	})

	t.Run("negative overlap is clamped", func(t *testing.T) {
		chunks := ChunkText(strings.Repeat("x", 300), 100, -5)
		if len(chunks) == 0 {
			t.Fatal("Expected chunks for non-empty text")
		}
	})
}
