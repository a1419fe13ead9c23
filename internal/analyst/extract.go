package analyst

import (
	"regexp"
	"strings"
)

var (
	// An opening fence with an optional info string, then everything up to
	// the closing fence or the end of the text.
	fencedBlock = regexp.MustCompile("(?s)```[\\w+#.-]*[ \\t]*\\r?\\n(.*?)(?:```|\\z)")
	inlineBlock = regexp.MustCompile("(?s)```(.*?)```")
)

// ExtractCode returns the trimmed interior of the first fenced code block in
// text, with or without a language tag. Text without any fence is treated
// as code as a whole.
func ExtractCode(text string) string {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := inlineBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}
