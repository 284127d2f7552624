package llm

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// StripThinkingTags removes <think>...</think> reasoning blocks from a
// finished answer. An unclosed block swallows the rest of the text.
func StripThinkingTags(s string) string {
	for {
		start := strings.Index(s, thinkOpen)
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], thinkClose)
		if end == -1 {
			s = s[:start]
			break
		}
		s = s[:start] + s[start+end+len(thinkClose):]
	}
	return strings.TrimSpace(s)
}

// ThinkFilter drops reasoning blocks from a stream of deltas before they
// reach emit. Tags split across deltas are held back until resolved.
type ThinkFilter struct {
	emit    func(string)
	pending string
	inThink bool
}

func NewThinkFilter(emit func(string)) *ThinkFilter {
	return &ThinkFilter{emit: emit}
}

// Write consumes one delta.
func (f *ThinkFilter) Write(delta string) {
	f.pending += delta
	for {
		if f.inThink {
			i := strings.Index(f.pending, thinkClose)
			if i == -1 {
				f.pending = f.pending[len(f.pending)-partialTag(f.pending, thinkClose):]
				return
			}
			f.pending = f.pending[i+len(thinkClose):]
			f.inThink = false
			continue
		}
		i := strings.Index(f.pending, thinkOpen)
		if i == -1 {
			keep := partialTag(f.pending, thinkOpen)
			f.send(f.pending[:len(f.pending)-keep])
			f.pending = f.pending[len(f.pending)-keep:]
			return
		}
		f.send(f.pending[:i])
		f.pending = f.pending[i+len(thinkOpen):]
		f.inThink = true
	}
}

// Flush emits text held back as a possible tag prefix. Call it once the
// stream ends.
func (f *ThinkFilter) Flush() {
	if !f.inThink {
		f.send(f.pending)
	}
	f.pending = ""
}

func (f *ThinkFilter) send(s string) {
	if s != "" && f.emit != nil {
		f.emit(s)
	}
}

// partialTag reports the length of the longest suffix of s that is a proper
// prefix of tag.
func partialTag(s, tag string) int {
	n := min(len(s), len(tag)-1)
	for ; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
