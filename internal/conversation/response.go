package conversation

import (
	"MultiModel-Chat/internal/llm"
)

const (
	// ErrorSuffix 标记端点调用失败时生成的回复名称。
	ErrorSuffix = "_Error"
	// CodeOutputSuffix 标记代码执行输出的回复名称。
	CodeOutputSuffix = "_Code_Output"
)

// Response 是一轮中某个端点产生的回复，也可能是错误或代码输出的合成条目。
type Response struct {
	Role    llm.Role `json:"role"`
	Name    string   `json:"name"`
	Content string   `json:"content"`
}

// Message 将回复转换为下一轮使用的助手消息。
func (r Response) Message() llm.Message {
	return llm.Message{Role: llm.RoleAssistant, Content: r.Content, Name: r.Name}
}

func toMessages(responses []Response) []llm.Message {
	out := make([]llm.Message, len(responses))
	for i, resp := range responses {
		out[i] = resp.Message()
	}
	return out
}

// StopReason 描述对话结束的原因。
type StopReason string

const (
	StopMaxTurns       StopReason = "max_turns_reached"
	StopNoContinuation StopReason = "no_continuation"
	StopAllFailed      StopReason = "all_endpoints_failed"
)

// state 保存一次调度的全部可变数据，只属于单个请求。
type state struct {
	messages  []llm.Message
	responses []Response
	context   *SharedContext
	turns     int
	answered  int
}

func newState(messages []llm.Message, contextLimit int) *state {
	return &state{
		messages: append([]llm.Message(nil), messages...),
		context:  NewSharedContext(contextLimit),
	}
}

// commit 将一轮的回复追加到结果中，并以助手消息的形式延续对话记录。
func (s *state) commit(turn []Response) {
	s.responses = append(s.responses, turn...)
	s.messages = append(s.messages, toMessages(turn)...)
	s.turns++
}
