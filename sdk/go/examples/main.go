package main

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"time"

	"MultiModel-Chat/internal/api"
	"MultiModel-Chat/internal/conversation"
	"MultiModel-Chat/internal/llm"
	"MultiModel-Chat/internal/transcript"
	"MultiModel-Chat/sdk/go/multichat"
)

// scriptedModels 模拟两个互相提问的模型，不访问外部服务。
type scriptedModels struct{}

func (scriptedModels) Query(_ context.Context, endpoint llm.Endpoint, messages []llm.Message, sharedContext string) (string, error) {
	turn := len(messages)
	if sharedContext == "" {
		return fmt.Sprintf("%s opening (history=%d). What do you think?", endpoint.Name, turn), nil
	}
	if strings.Contains(sharedContext, "Model B's response") {
		return fmt.Sprintf("%s agrees.", endpoint.Name), nil
	}
	return fmt.Sprintf("%s replies to the context. Could you elaborate?", endpoint.Name), nil
}

type echoRunner struct{}

func (echoRunner) Run(_ context.Context, code string, _ time.Duration) string {
	return "would run: " + code + "\n"
}

func main() {
	defaults := []llm.Endpoint{
		{Name: "Model A", ModelID: "gpt-3.5-turbo"},
		{Name: "Model B", ModelID: "gpt-4"},
	}
	archive := transcript.NewMemoryStore()
	orch := conversation.New(scriptedModels{}, echoRunner{}, defaults,
		conversation.WithPacer(conversation.NoPacer{}),
		conversation.WithArchive(archive),
	)
	server := api.NewServer(api.Config{
		AllowedOrigins:   []string{"http://localhost:5173"},
		Conversations:    orch,
		Runner:           echoRunner{},
		Archive:          archive,
		DefaultEndpoints: orch.DefaultEndpoints(),
	})

	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	client, err := multichat.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("health: %s (missing=%v)\n", health.Status, health.MissingEnvVars)

	result, err := client.Chat(ctx, multichat.ChatRequest{
		Messages:     []multichat.Message{{Role: "user", Content: "Debate tabs versus spaces."}},
		AutoContinue: true,
		MaxTurns:     3,
	})
	if err != nil {
		panic(err)
	}
	for _, resp := range result.Responses {
		fmt.Printf("[%s] %s\n", resp.Name, resp.Content)
	}
	fmt.Printf("run %s stopped after %d turn(s): %s\n", result.RunID, result.Turns, result.StopReason)

	history, err := client.ListConversations(ctx, 10)
	if err != nil {
		panic(err)
	}
	fmt.Printf("archived runs: %d\n", len(history))
}
