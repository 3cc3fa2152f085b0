package pipeline

import "regexp"

var boundary = regexp.MustCompile(`([.!?])\s+`)

// sentenceSplitter accumulates streamed agent tokens and yields complete
// sentences as soon as a terminator followed by whitespace appears.
type sentenceSplitter struct {
	buf string
}

// feed appends a token and returns every complete sentence it completes, in
// order. A single token may complete more than one sentence.
func (s *sentenceSplitter) feed(token string) []string {
	s.buf += token
	var out []string
	for {
		loc := boundary.FindStringSubmatchIndex(s.buf)
		if loc == nil {
			break
		}
		end := loc[3] // end of the captured terminator group
		out = append(out, s.buf[:end])
		s.buf = s.buf[loc[1]:] // advance past the trailing whitespace too
	}
	return out
}

// flush returns any non-empty residual as a final sentence.
func (s *sentenceSplitter) flush() (string, bool) {
	rest := s.buf
	s.buf = ""
	if rest == "" {
		return "", false
	}
	return rest, true
}
