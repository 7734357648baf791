// Package action implements the XML-style action grammar described in
// spec.md §4.3 and §6.5: assistant text contains tags like
// <execute>echo hi</execute>, and the parser extracts an ordered list of
// Actions from them. Hector's tool layer consumes structured provider
// tool_calls, not text tags, so this package has no direct teacher
// analogue; it is grounded on the XML-in-text agent-loop parsers found in
// the retrieval pack's other_examples/ (e.g. the <tool_call> tag scanners
// used by several agent-loop.go files) and on
// original_source/penguin/utils/parser.py's tolerant-of-malformed-openers
// behavior.
package action

import (
	"strings"
)

// Action is one parsed directive.
type Action struct {
	Name string
	Args map[string]string
	// RawStart/RawEnd are the [start,end) byte offsets of the whole tag
	// (including the <name>...</name> wrapper) within the text that was parsed.
	// Per spec.md P6, concatenating these spans in order yields an order-preserving
	// substring of the input.
	RawStart int
	RawEnd   int
}

// Raw returns the exact source text this Action was parsed from.
func (a Action) Raw(source string) string {
	return source[a.RawStart:a.RawEnd]
}

// ParseError reports a malformed opener with no matching closer. Parsing
// continues past it (spec.md §4.3).
type ParseError struct {
	Name    string
	Offset  int
	Message string
}

func (e ParseError) Error() string {
	return e.Message
}

// Options configures Parse.
type Options struct {
	// Whitelist is the closed set of recognized action names. A tag whose
	// name is not in the whitelist is left untouched as ordinary text
	// (spec.md §4.3: "Preserve unknown/HTML-looking tags untouched").
	Whitelist map[string]bool

	// StrictInsideFences, when true, ignores action tags that appear inside
	// fenced code blocks (``` ... ```). When false (the default), tags
	// inside fences are still treated as actions — this is the legacy
	// behavior documented as an explicit, load-bearing choice in spec.md §9.
	StrictInsideFences bool
}

// Parse extracts an ordered list of Actions from text per the grammar in
// spec.md §4.3/§6.5. It is deterministic (spec.md P6): the same text and
// Options always yield the same result.
func Parse(text string, opts Options) ([]Action, []ParseError) {
	fenceRanges := fencedCodeRanges(text)

	var actions []Action
	var errs []ParseError

	i := 0
	for i < len(text) {
		ltIdx := strings.IndexByte(text[i:], '<')
		if ltIdx < 0 {
			break
		}
		tagStart := i + ltIdx

		name, nameEnd, ok := scanTagName(text, tagStart)
		if !ok {
			i = tagStart + 1
			continue
		}

		if opts.Whitelist != nil && !opts.Whitelist[name] {
			i = nameEnd
			continue
		}

		closeTag := "</" + name + ">"
		openEnd := strings.IndexByte(text[nameEnd:], '>')
		if openEnd < 0 {
			errs = append(errs, ParseError{
				Name:    name,
				Offset:  tagStart,
				Message: "malformed opener for <" + name + ">: missing '>'",
			})
			i = nameEnd
			continue
		}
		payloadStart := nameEnd + openEnd + 1

		closeIdx := strings.Index(text[payloadStart:], closeTag)
		if closeIdx < 0 {
			errs = append(errs, ParseError{
				Name:    name,
				Offset:  tagStart,
				Message: "opener <" + name + "> has no matching </" + name + ">",
			})
			i = payloadStart
			continue
		}
		payloadEnd := payloadStart + closeIdx
		rawEnd := payloadEnd + len(closeTag)

		if opts.StrictInsideFences && inAnyRange(tagStart, fenceRanges) {
			i = rawEnd
			continue
		}

		payload := text[payloadStart:payloadEnd]
		actions = append(actions, Action{
			Name:     name,
			Args:     parsePayload(payload),
			RawStart: tagStart,
			RawEnd:   rawEnd,
		})
		i = rawEnd
	}

	return actions, errs
}

// scanTagName reads an opening tag's name starting at text[start] == '<'.
// Returns the name, the index just past the name, and whether a
// well-formed-enough name was found (letters, digits, underscore).
func scanTagName(text string, start int) (name string, nameEnd int, ok bool) {
	j := start + 1
	if j >= len(text) || text[j] == '/' {
		return "", 0, false
	}
	k := j
	for k < len(text) && isNameByte(text[k]) {
		k++
	}
	if k == j {
		return "", 0, false
	}
	return text[j:k], k, true
}

func isNameByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// parsePayload accepts both a raw-string payload and a colon-delimited
// key:value|key:value payload (spec.md §6.5). A payload with no ':' is
// stored under the empty-string key so callers can retrieve it as the sole
// positional argument.
func parsePayload(payload string) map[string]string {
	args := make(map[string]string)
	if !strings.Contains(payload, ":") {
		args[""] = payload
		return args
	}

	segments := strings.Split(payload, "|")
	anyKV := false
	for _, seg := range segments {
		k, v, found := strings.Cut(seg, ":")
		if found {
			args[strings.TrimSpace(k)] = v
			anyKV = true
		}
	}
	if !anyKV {
		args[""] = payload
	}
	return args
}

// fenceRange is a [start,end) byte range covered by a fenced code block.
type fenceRange struct{ start, end int }

func fencedCodeRanges(text string) []fenceRange {
	var ranges []fenceRange
	i := 0
	for {
		open := strings.Index(text[i:], "```")
		if open < 0 {
			break
		}
		start := i + open
		searchFrom := start + 3
		close := strings.Index(text[searchFrom:], "```")
		if close < 0 {
			ranges = append(ranges, fenceRange{start, len(text)})
			break
		}
		end := searchFrom + close + 3
		ranges = append(ranges, fenceRange{start, end})
		i = end
	}
	return ranges
}

func inAnyRange(offset int, ranges []fenceRange) bool {
	for _, r := range ranges {
		if offset >= r.start && offset < r.end {
			return true
		}
	}
	return false
}
