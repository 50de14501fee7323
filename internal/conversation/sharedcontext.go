package conversation

import (
	"encoding/json"
	"strings"

	"MultiModel-Chat/internal/extract"
)

// SegmentKind 区分共享上下文中的片段类型。
type SegmentKind string

const (
	SegmentResponse   SegmentKind = "response"
	SegmentStructured SegmentKind = "structured"
)

// Segment 是共享上下文中归属于某个端点的一段文本。
type Segment struct {
	Endpoint string
	Kind     SegmentKind
	Text     string
}

func (s Segment) render() string {
	switch s.Kind {
	case SegmentStructured:
		return "\n" + s.Endpoint + " provided structured data:\n" + s.Text
	default:
		return "\n" + s.Endpoint + "'s response:\n" + s.Text + "\n"
	}
}

// SharedContext 是只追加的片段日志，渲染后作为其他端点可见的上下文。
// limit 大于 0 时，渲染结果只保留能放入 limit 字节的最新片段，最新的片段总会保留。
type SharedContext struct {
	segments []Segment
	limit    int
}

// NewSharedContext 创建共享上下文，limit 为 0 表示不限制长度。
func NewSharedContext(limit int) *SharedContext {
	if limit < 0 {
		limit = 0
	}
	return &SharedContext{limit: limit}
}

// AppendResponse 记录端点的原始回复。
func (c *SharedContext) AppendResponse(endpoint, text string) {
	c.segments = append(c.segments, Segment{Endpoint: endpoint, Kind: SegmentResponse, Text: text})
}

// AppendStructured 记录端点回复中解析出的 JSON 数据，每个块格式化后独占若干行。
func (c *SharedContext) AppendStructured(endpoint string, blocks []json.RawMessage) {
	if len(blocks) == 0 {
		return
	}
	var b strings.Builder
	for _, block := range blocks {
		b.WriteString(extract.Pretty(block))
		b.WriteString("\n")
	}
	c.segments = append(c.segments, Segment{Endpoint: endpoint, Kind: SegmentStructured, Text: b.String()})
}

// Segments 返回片段的副本。
func (c *SharedContext) Segments() []Segment {
	return append([]Segment(nil), c.segments...)
}

// Len 返回片段数量。
func (c *SharedContext) Len() int {
	return len(c.segments)
}

// String 渲染共享上下文。
func (c *SharedContext) String() string {
	if len(c.segments) == 0 {
		return ""
	}
	rendered := make([]string, len(c.segments))
	for i, seg := range c.segments {
		rendered[i] = seg.render()
	}

	first := 0
	if c.limit > 0 {
		total := 0
		first = len(rendered)
		for i := len(rendered) - 1; i >= 0; i-- {
			if first < len(rendered) && total+len(rendered[i]) > c.limit {
				break
			}
			total += len(rendered[i])
			first = i
		}
	}
	return strings.Join(rendered[first:], "")
}
