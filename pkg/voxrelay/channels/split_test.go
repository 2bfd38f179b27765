package channels

import (
	"strings"
	"testing"
)

func TestSplitMessage_Short(t *testing.T) {
	t.Parallel()
	chunks := SplitMessage("hello world", 1900)
	if len(chunks) != 1 || chunks[0] != "hello world" {
		t.Errorf("SplitMessage() = %v, want single unchanged chunk", chunks)
	}
}

func TestSplitMessage_WhitespaceBoundary(t *testing.T) {
	t.Parallel()

	// 3800 characters with a single interior space just before the budget.
	// The split lands on the space; re-inserting it reconstructs the text.
	text := strings.Repeat("a", 1899) + " " + strings.Repeat("b", 1900)
	chunks := SplitMessage(text, 1900)

	if len(chunks) != 2 {
		t.Fatalf("SplitMessage() produced %d chunks, want 2", len(chunks))
	}
	if len(chunks[0]) != 1899 {
		t.Errorf("first chunk length = %d, want 1899", len(chunks[0]))
	}
	if len(chunks[1]) != 1900 {
		t.Errorf("second chunk length = %d, want 1900", len(chunks[1]))
	}
	if got := chunks[0] + " " + chunks[1]; got != text {
		t.Error("chunks with the original interior space do not reconstruct the text")
	}
}

func TestSplitMessage_NoWhitespace(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("x", 4000)
	chunks := SplitMessage(text, 1900)

	if len(chunks) != 3 {
		t.Fatalf("SplitMessage() produced %d chunks, want 3", len(chunks))
	}
	if strings.Join(chunks, "") != text {
		t.Error("hard-split chunks do not concatenate to the original")
	}
	for i, c := range chunks[:2] {
		if len(c) != 1900 {
			t.Errorf("chunk %d length = %d, want 1900", i, len(c))
		}
	}
}

func TestSplitMessage_OrderPreserved(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 500; i++ {
		b.WriteString("word ")
	}
	text := strings.TrimRight(b.String(), " ")

	chunks := SplitMessage(text, 100)
	rejoined := strings.Join(chunks, " ")
	if rejoined != text {
		t.Error("whitespace-boundary chunks rejoined with spaces do not match the original")
	}
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk %d exceeds budget: %d bytes", i, len(c))
		}
	}
}
