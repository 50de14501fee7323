package llm

import (
	"strings"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Model A!":              "Model_A_",
		"Model_B-2":             "Model_B-2",
		"":                      "",
		"模型":                    "__",
		strings.Repeat("a", 70): strings.Repeat("a", 64),
	}
	for input, want := range cases {
		if got := SanitizeName(input); got != want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestProjectMessagesNameHandling(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello", Name: "Model A!"},
	}

	openAI := ProjectMessages(Endpoint{Name: "A", BaseURL: "https://api.openai.com/v1"}, messages, "")
	if len(openAI) != 2 {
		t.Fatalf("unexpected length: %d", len(openAI))
	}
	if openAI[0].Name != "" {
		t.Fatalf("user message should not carry a name: %+v", openAI[0])
	}
	if openAI[1].Name != "Model_A_" {
		t.Fatalf("expected sanitized name, got %q", openAI[1].Name)
	}

	other := ProjectMessages(Endpoint{Name: "B", BaseURL: "http://localhost:11434/v1"}, messages, "")
	if other[1].Name != "Model A!" {
		t.Fatalf("expected name to pass through, got %q", other[1].Name)
	}
}

func TestProjectMessagesPrependsContext(t *testing.T) {
	projected := ProjectMessages(Endpoint{BaseURL: "http://local"}, []Message{{Role: RoleUser, Content: "q"}}, "\nModel A's response:\nyes\n")
	if len(projected) != 2 {
		t.Fatalf("unexpected length: %d", len(projected))
	}
	if projected[0].Role != RoleSystem {
		t.Fatalf("expected system preamble first, got %s", projected[0].Role)
	}
	if !strings.HasPrefix(projected[0].Content, "Context from other models:\n") ||
		!strings.Contains(projected[0].Content, "Model A's response:\nyes") ||
		!strings.HasSuffix(projected[0].Content, "ask a relevant follow-up question.") {
		t.Fatalf("unexpected preamble: %q", projected[0].Content)
	}
}
