// Package extract pulls structured content out of free-text model output:
// RUN-CODE marked python blocks for execution and json fenced blocks for the
// shared context.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// RunCodeMarker 必须出现在文本中，代码块才会被提取执行。
const RunCodeMarker = "RUN-CODE"

var (
	codeBlockPattern = regexp.MustCompile("(?s)RUN-CODE\n```(?:python)?\n(.*?)\n```")
	jsonBlockPattern = regexp.MustCompile("(?s)```json\n(.*?)\n```")
)

// CodeBlocks 返回紧跟 RUN-CODE 标记的代码块内容（已去除首尾空白），按出现顺序排列。
// 没有标记时即使存在代码块也返回空。
func CodeBlocks(text string) []string {
	if !strings.Contains(text, RunCodeMarker) {
		return nil
	}
	matches := codeBlockPattern.FindAllStringSubmatch(text, -1)
	blocks := make([]string, 0, len(matches))
	for _, match := range matches {
		blocks = append(blocks, strings.TrimSpace(match[1]))
	}
	return blocks
}

// JSONBlocks 返回所有可解析的 json 代码块，解析失败的块被静默丢弃。
// 返回的原始字节保留键的顺序。
func JSONBlocks(text string) []json.RawMessage {
	matches := jsonBlockPattern.FindAllStringSubmatch(text, -1)
	blocks := make([]json.RawMessage, 0, len(matches))
	for _, match := range matches {
		if _, err := decodeOrdered([]byte(match[1])); err != nil {
			continue
		}
		blocks = append(blocks, json.RawMessage(match[1]))
	}
	return blocks
}
