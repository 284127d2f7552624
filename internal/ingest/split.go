package ingest

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	headingStart = regexp.MustCompile(`(?m)^[ \t]*Статья\s+\d+`)
	headingNum   = regexp.MustCompile(`Статья\s+(\d+)`)
)

// SplitArticles cuts text before every line that begins with "Статья <n>".
//
// The document opens with a table of contents whose headings carry
// increasing numbers. Chunks are skipped while the numbers keep rising; the
// first chunk whose number drops below the running maximum starts the body.
// From then on, chunks with no heading are appended to the previous article.
func SplitArticles(text string) []string {
	var (
		body      []string
		maxNum    int
		tocPassed bool
	)
	for _, chunk := range splitAtHeadings(text) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}

		m := headingNum.FindStringSubmatch(chunk)
		if m == nil {
			if tocPassed && len(body) > 0 {
				body[len(body)-1] += "\n\n" + chunk
			}
			continue
		}

		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if tocPassed {
			body = append(body, chunk)
			continue
		}
		if n < maxNum {
			tocPassed = true
			body = append(body, chunk)
			continue
		}
		maxNum = n
	}
	return body
}

func splitAtHeadings(text string) []string {
	locs := headingStart.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	out := make([]string, 0, len(locs)+1)
	prev := 0
	for _, loc := range locs {
		out = append(out, text[prev:loc[0]])
		prev = loc[0]
	}
	return append(out, text[prev:])
}
