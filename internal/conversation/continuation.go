package conversation

import (
	"regexp"
	"strings"
)

// 单词边界按 Unicode 字母、数字和下划线判定，RE2 的 \b 只识别 ASCII。
const (
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
	wordStart = `(?:^|[^\p{L}\p{N}_])`
)

// 匹配前会先转为小写。
var continuationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\?\n?$`),
	regexp.MustCompile(`what (?:do|are|is|would|should|could|will|can) (?:you|we|they|it|i)` + wordEnd),
	regexp.MustCompile(`how (?:do|would|should|could|will|can) (?:you|we|they|it|i)` + wordEnd),
	regexp.MustCompile(`(?:could|would|can|will) (?:you|we|they|it|i)(?:\?|[^\p{L}\p{N}_\n].*\?)`),
	regexp.MustCompile(wordStart + `(?:explain|describe|elaborate|clarify|tell me)` + wordEnd),
}

// ShouldContinue 根据一轮回复中的最后一条判断是否需要继续对话。
// 最后一条可能是错误或代码输出条目，同样参与判断。
func ShouldContinue(responses []Response) bool {
	if len(responses) == 0 {
		return false
	}
	content := strings.ToLower(responses[len(responses)-1].Content)
	for _, pattern := range continuationPatterns {
		if pattern.MatchString(content) {
			return true
		}
	}
	return false
}
