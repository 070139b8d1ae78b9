package chunker

import (
	"regexp"
	"strings"

	"github.com/custodia-labs/kbengine/internal/core/domain"
)

// paragraphBreak matches a blank line, possibly containing whitespace.
var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

const paragraphSep = "\n\n"

// Split divides text into chunks of at most chunkSize characters.
//
// Paragraphs (separated by blank lines) are packed into a window until the
// next one would not fit. Each new window starts with the last overlap
// characters of the previous chunk. Paragraphs longer than chunkSize are cut
// into slices that repeat the previous slice's trailing overlap characters.
// Sizes are counted in runes.
func Split(text string, chunkSize, overlap int) ([]string, error) {
	opts := domain.ChunkOptions{ChunkSize: chunkSize, Overlap: overlap}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s := splitter{size: chunkSize, overlap: overlap}
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		s.add([]rune(para))
	}
	s.flush()

	return s.chunks, nil
}

type splitter struct {
	size    int
	overlap int
	chunks  []string

	window []rune
	// fresh is true when the window holds more than the carried overlap.
	fresh bool
}

func (s *splitter) add(para []rune) {
	if len(para) > s.size {
		s.flush()
		s.hardSplit(para)
		return
	}

	if s.joinedLen(para) > s.size {
		s.flush()
		// The carried overlap may still leave too little room.
		if room := s.size - len(paragraphSep) - len(para); len(s.window) > room {
			if room <= 0 {
				s.window = nil
			} else {
				s.window = s.window[len(s.window)-room:]
			}
		}
	}

	if len(s.window) > 0 {
		s.window = append(s.window, []rune(paragraphSep)...)
	}
	s.window = append(s.window, para...)
	s.fresh = true
}

func (s *splitter) joinedLen(para []rune) int {
	if len(s.window) == 0 {
		return len(para)
	}
	return len(s.window) + len(paragraphSep) + len(para)
}

// flush emits the window if it holds new content and keeps its tail.
func (s *splitter) flush() {
	if !s.fresh {
		return
	}
	s.emit(s.window)
}

func (s *splitter) hardSplit(para []rune) {
	step := s.size - s.overlap
	for start := 0; ; start += step {
		end := min(start+s.size, len(para))
		s.emit(para[start:end])
		if end == len(para) {
			return
		}
	}
}

func (s *splitter) emit(chunk []rune) {
	s.chunks = append(s.chunks, string(chunk))
	s.window = tail(chunk, s.overlap)
	s.fresh = false
}

// tail returns a copy of the last n runes of r.
func tail(r []rune, n int) []rune {
	if n <= 0 {
		return nil
	}
	if n > len(r) {
		n = len(r)
	}
	out := make([]rune, n)
	copy(out, r[len(r)-n:])
	return out
}
