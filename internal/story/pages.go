package story

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// metaOpeners start lines that talk about the story instead of telling it.
var metaOpeners = []string{
	"here is",
	"here's",
	"sure",
	"certainly",
	"let's begin",
	"story:",
	"title:",
	"introduction:",
}

// NormalizePages reshapes provider prose into ordered pages of one or two
// sentences. The result is deterministic for a given input.
func NormalizePages(raw, title string) []string {
	paragraphs := splitParagraphs(raw)
	paragraphs = stripPreamble(paragraphs, title)
	paragraphs = stripClosing(paragraphs)

	var pages []string
	for _, para := range paragraphs {
		text := strings.Join(para, " ")
		sentences := SplitSentences(text)
		for i := 0; i < len(sentences); i += 2 {
			end := min(i+2, len(sentences))
			page := strings.TrimSpace(strings.Join(sentences[i:end], " "))
			if page != "" {
				pages = append(pages, page)
			}
		}
	}
	if len(pages) > MaxPages {
		pages = pages[:MaxPages]
	}
	return pages
}

// splitParagraphs splits on blank lines and returns each paragraph as its
// trimmed, non-empty lines.
func splitParagraphs(raw string) [][]string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	var (
		out  [][]string
		cur  []string
		push = func() {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
		}
	)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			push()
			continue
		}
		cur = append(cur, line)
	}
	push()
	return out
}

// stripPreamble removes leading lines until the first narrative line.
func stripPreamble(paragraphs [][]string, title string) [][]string {
	headingDropped := false
	for len(paragraphs) > 0 {
		para := paragraphs[0]
		line := para[0]
		drop := false
		switch {
		case isSeparator(line), strings.HasPrefix(line, "#"), strings.HasSuffix(line, ":"):
			drop = true
		case isMeta(line):
			drop = true
		case !headingDropped && (matchesTitle(line, title) || isBareHeading(line)):
			drop = true
			headingDropped = true
		}
		if !drop {
			break
		}
		if len(para) > 1 {
			paragraphs[0] = para[1:]
		} else {
			paragraphs = paragraphs[1:]
		}
	}
	return paragraphs
}

func stripClosing(paragraphs [][]string) [][]string {
	for len(paragraphs) > 0 {
		last := paragraphs[len(paragraphs)-1]
		if !isTheEnd(last[len(last)-1]) {
			break
		}
		if len(last) > 1 {
			paragraphs[len(paragraphs)-1] = last[:len(last)-1]
		} else {
			paragraphs = paragraphs[:len(paragraphs)-1]
		}
	}
	return paragraphs
}

func isMeta(line string) bool {
	lower := foldCase(strings.TrimLeft(line, "*_\"' "))
	for _, opener := range metaOpeners {
		if strings.HasPrefix(lower, opener) {
			if strings.HasSuffix(opener, ":") {
				return true
			}
			rest := lower[len(opener):]
			if rest == "" || !isWordRune(firstRune(rest)) {
				return true
			}
		}
	}
	return normalize(line) == "once upon a time"
}

func isTheEnd(line string) bool {
	return normalize(line) == "the end"
}

func matchesTitle(line, title string) bool {
	t := normalize(title)
	return t != "" && normalize(line) == t
}

// isBareHeading reports a short line without terminal punctuation.
func isBareHeading(line string) bool {
	trimmed := strings.Trim(line, "*_ ")
	if trimmed == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(trimmed)
	if isTerminal(last) || isCloser(last) {
		return false
	}
	return len(strings.Fields(trimmed)) <= 6
}

func isSeparator(line string) bool {
	return strings.Trim(line, "-*_=~ ") == ""
}

// foldCase builds a Caser per call; Casers are not safe for concurrent use.
func foldCase(s string) string {
	return cases.Fold().String(s)
}

// normalize folds case and drops punctuation and extra spacing.
func normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range foldCase(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}

// SplitSentences splits text after '.', '!' or '?' (plus any closing quotes
// or brackets) when followed by whitespace or the end of the text.
func SplitSentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	var (
		out   []string
		start int
	)
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		end := i + 1
		for end < len(runes) && (isTerminal(runes[end]) || isCloser(runes[end])) {
			end++
		}
		if end == len(runes) || unicode.IsSpace(runes[end]) {
			if s := strings.TrimSpace(string(runes[start:end])); s != "" {
				out = append(out, s)
			}
			start = end
		}
		i = end - 1
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isTerminal(r rune) bool { return r == '.' || r == '!' || r == '?' }

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', '”', '’', ')', ']', '»':
		return true
	}
	return false
}

func isWordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}
