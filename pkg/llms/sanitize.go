package llms

import (
	"regexp"
	"strings"
)

// toolResultPrefix marks a tool message rewritten to assistant role because
// no preceding assistant message claims it via a matching tool_calls entry.
const toolResultPrefix = "[Tool Result] "

// orphanToolCallRefPattern matches a bare tool_call_id-looking token in free
// text, the shape providers sometimes echo back verbatim after a rewind.
var orphanToolCallRefPattern = regexp.MustCompile(`\btool_call_[A-Za-z0-9_-]+\b`)

// Sanitize rewrites messages per spec.md §4.5.3, the "aggressive reformat"
// contract mandatory to pass provider validators:
//
//  1. A role "tool" message is only legal when the nearest preceding
//     assistant message, with only other "tool" messages in between, has
//     ToolCalls containing a matching ID. Any "tool" message without such a
//     match is rewritten to role "assistant" with its content prefixed by
//     "[Tool Result] ".
//  2. Any orphan tool_call_id-shaped reference appearing in ordinary message
//     text (not structured ToolCallID fields) is redacted to
//     "[tool-call-reference]".
//
// Sanitize never mutates its input; it returns a new slice.
func Sanitize(messages []Message) []Message {
	claimed := make(map[string]bool)
	for _, m := range messages {
		if m.Role == "assistant" {
			for _, tc := range m.ToolCalls {
				claimed[tc.ID] = true
			}
		}
	}

	out := make([]Message, len(messages))
	for i, m := range messages {
		out[i] = m
		if m.Role == "tool" && !claimsAdjacentToolCall(messages, i) {
			out[i] = Message{
				Role:    "assistant",
				Content: toolResultPrefix + m.Content,
			}
			continue
		}
		out[i].Content = redactOrphanReferences(out[i].Content, claimed)
	}
	return out
}

// claimsAdjacentToolCall reports whether messages[i] (a "tool" message) is
// claimed by the nearest preceding assistant message's ToolCalls. It skips
// back over sibling "tool" messages belonging to the same multi-call
// assistant turn, but stops at anything else: a "tool" message separated
// from its issuing assistant turn by a user message (e.g. after a rewind)
// is not adjacent and must be rewritten, even if some assistant message
// earlier in the transcript once claimed the same ID (spec.md §4.5.3, P7).
func claimsAdjacentToolCall(messages []Message, i int) bool {
	j := i - 1
	for j >= 0 && messages[j].Role == "tool" {
		j--
	}
	if j < 0 || messages[j].Role != "assistant" {
		return false
	}
	for _, tc := range messages[j].ToolCalls {
		if tc.ID == messages[i].ToolCallID {
			return true
		}
	}
	return false
}

func redactOrphanReferences(text string, claimed map[string]bool) string {
	if !strings.Contains(text, "tool_call_") {
		return text
	}
	return orphanToolCallRefPattern.ReplaceAllStringFunc(text, func(ref string) string {
		if claimed[ref] {
			return ref
		}
		return "[tool-call-reference]"
	})
}
