package conversation

import (
	"encoding/json"
	"testing"
)

func TestSharedContextRendering(t *testing.T) {
	c := NewSharedContext(0)
	c.AppendStructured("Model A", []json.RawMessage{json.RawMessage(`{"x":1}`), json.RawMessage(`[true]`)})
	c.AppendResponse("Model A", "hi")
	c.AppendStructured("Model B", nil)

	want := "\nModel A provided structured data:\n{\n  \"x\": 1\n}\n[\n  true\n]\n" +
		"\nModel A's response:\nhi\n"
	if got := c.String(); got != want {
		t.Fatalf("unexpected context:\n%q\nwant\n%q", got, want)
	}
	if c.Len() != 2 {
		t.Fatalf("expected empty structured append to be ignored, got %d segments", c.Len())
	}
}

func TestSharedContextLimitDropsOldest(t *testing.T) {
	c := NewSharedContext(40)
	c.AppendResponse("A", "first answer")
	c.AppendResponse("B", "second")
	c.AppendResponse("C", "third")

	// "\nB's response:\nsecond\n" 为 22 字节，"\nC's response:\nthird\n" 为 21 字节。
	want := "\nC's response:\nthird\n"
	if got := c.String(); got != want {
		t.Fatalf("unexpected context %q", got)
	}

	tiny := NewSharedContext(1)
	tiny.AppendResponse("A", "long text")
	if got := tiny.String(); got != "\nA's response:\nlong text\n" {
		t.Fatalf("newest segment must always be kept, got %q", got)
	}
	if len(c.Segments()) != 3 {
		t.Fatalf("segments must never be removed from the log")
	}
}
