package intent

import (
	"regexp"
	"strings"
)

var (
	sentenceRe = regexp.MustCompile(`[;!?\n]+|\.(?:\s+|$)`)
	// 连接词后面紧跟动作动词时才切分，"Tom and Anna" 不切
	conjunctionRe = regexp.MustCompile(`(?i)(?:\s*,\s*(?:and\s+then\s+|and\s+|then\s+)?|\s+and\s+then\s+|\s+and\s+|\s+then\s+)([a-z']+)`)
)

var actionVerbs = map[string]bool{
	"schedule": true, "book": true, "set": true, "create": true, "add": true,
	"remind": true, "make": true, "send": true, "email": true, "reply": true,
	"draft": true, "write": true, "message": true, "check": true, "show": true,
	"what's": true, "whats": true, "how": true, "research": true, "find": true,
	"look": true, "search": true, "summarize": true, "summarise": true, "recap": true,
	"remember": true, "who": true, "tell": true, "plan": true, "put": true,
	"review": true, "get": true, "call": true, "notify": true, "investigate": true,
	"list": true, "give": true,
}

// SplitClauses 按句子和连接词切分，保持出现顺序
func SplitClauses(text string) []string {
	var clauses []string
	for _, sentence := range sentenceRe.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		start := 0
		for _, m := range conjunctionRe.FindAllStringSubmatchIndex(sentence, -1) {
			word := strings.ToLower(sentence[m[2]:m[3]])
			if !actionVerbs[word] || m[0] <= start {
				continue
			}
			clauses = appendClause(clauses, sentence[start:m[0]])
			start = m[2]
		}
		clauses = appendClause(clauses, sentence[start:])
	}
	return clauses
}

func appendClause(out []string, s string) []string {
	s = strings.Trim(strings.TrimSpace(s), ",")
	if s == "" {
		return out
	}
	return append(out, strings.TrimSpace(s))
}

// normalize 小写、去标点、合并空白，用作缓存键和关键词匹配
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'', r == ':', r > 127:
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
