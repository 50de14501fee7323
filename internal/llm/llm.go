package llm

import "context"

// Role 表示对话消息的角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Endpoint 描述一个可独立访问的模型端点，在一次请求内不可变。
type Endpoint struct {
	Name    string `json:"name" yaml:"name"`
	APIKey  string `json:"apiKey" yaml:"api_key"`
	BaseURL string `json:"baseUrl" yaml:"base_url"`
	ModelID string `json:"modelId" yaml:"model_id"`
}

// Message 是在轮次之间流转的对话记录。Name 标识产生该消息的端点。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Client 定义了调用单个模型端点的统一接口。
//
// sharedContext 非空时，实现需要在消息前追加一条系统消息（见 ContextPreamble）。
// 返回的文本已去除首尾空白。
type Client interface {
	Query(ctx context.Context, endpoint Endpoint, messages []Message, sharedContext string) (string, error)
}
