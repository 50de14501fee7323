package llm

import (
	"regexp"
	"strings"
)

const maxNameLength = 64

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// WireMessage 是发送给端点的单条消息。
type WireMessage struct {
	Role    Role
	Content string
	Name    string
}

// IsOpenAIBaseURL 判断端点地址是否指向 OpenAI 官方 API。
func IsOpenAIBaseURL(baseURL string) bool {
	return strings.Contains(baseURL, "openai.com")
}

// SanitizeName 将名称转换为 OpenAI 接受的格式：仅保留字母、数字、下划线与连字符，
// 且长度不超过 64。空名称返回空字符串，调用方应省略该字段。
func SanitizeName(name string) string {
	if name == "" {
		return ""
	}
	sanitized := invalidNameChars.ReplaceAllString(name, "_")
	if runes := []rune(sanitized); len(runes) > maxNameLength {
		sanitized = string(runes[:maxNameLength])
	}
	return sanitized
}

// ContextPreamble 构造携带共享上下文的系统提示。
func ContextPreamble(sharedContext string) string {
	return "Context from other models:\n" + sharedContext + "\n\n" +
		"Consider this context in your response. If you see a question or topic that needs further discussion, " +
		"provide your perspective and ask a relevant follow-up question."
}

// ProjectMessages 将对话记录投影为发往指定端点的消息列表。
func ProjectMessages(endpoint Endpoint, messages []Message, sharedContext string) []WireMessage {
	projected := make([]WireMessage, 0, len(messages)+1)
	if sharedContext != "" {
		projected = append(projected, WireMessage{Role: RoleSystem, Content: ContextPreamble(sharedContext)})
	}

	openAI := IsOpenAIBaseURL(endpoint.BaseURL)
	for _, msg := range messages {
		wire := WireMessage{Role: msg.Role, Content: msg.Content}
		if msg.Name != "" {
			if openAI {
				wire.Name = SanitizeName(msg.Name)
			} else {
				wire.Name = msg.Name
			}
		}
		projected = append(projected, wire)
	}
	return projected
}
