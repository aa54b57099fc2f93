package hardhat

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

var errNoExportedObject = errors.New("no exported object literal found")

// ParseJSObject extracts the object assigned to module.exports (or the
// default export) from a JavaScript config file. Only plain object literals
// are understood; anything using code (functions, spreads, template
// strings) fails and callers fall back to a text search.
func ParseJSObject(src string) (map[string]any, error) {
	literal, err := exportedObject(src)
	if err != nil {
		return nil, err
	}

	var obj map[string]any
	if err := yaml.Unmarshal([]byte(stripComments(literal)), &obj); err != nil {
		return nil, fmt.Errorf("failed to decode object literal: %w", err)
	}
	if obj == nil {
		return nil, errNoExportedObject
	}
	return obj, nil
}

func exportedObject(src string) (string, error) {
	idx := -1
	for _, marker := range []string{"module.exports", "export default"} {
		if i := strings.Index(src, marker); i >= 0 {
			idx = i + len(marker)
			break
		}
	}
	if idx < 0 {
		return "", errNoExportedObject
	}

	start := strings.IndexByte(src[idx:], '{')
	if start < 0 {
		return "", errNoExportedObject
	}
	start += idx

	depth := 0
	s := scanner{src: src, pos: start}
	for s.pos < len(src) {
		if s.skipStringOrComment() {
			continue
		}
		switch src[s.pos] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return src[start : s.pos+1], nil
			}
		}
		s.pos++
	}
	return "", fmt.Errorf("unbalanced braces in exported object")
}

// stripComments removes // and /* */ comments that are not inside strings
func stripComments(src string) string {
	var b strings.Builder
	s := scanner{src: src}
	for s.pos < len(src) {
		begin := s.pos
		if s.skipStringOrComment() {
			if src[begin] == '"' || src[begin] == '\'' || src[begin] == '`' {
				b.WriteString(src[begin:s.pos])
			}
			continue
		}
		b.WriteByte(src[s.pos])
		s.pos++
	}
	return b.String()
}

type scanner struct {
	src string
	pos int
}

// skipStringOrComment advances past a string literal or comment starting at
// pos and reports whether it did
func (s *scanner) skipStringOrComment() bool {
	c := s.src[s.pos]
	switch {
	case c == '"' || c == '\'' || c == '`':
		s.pos++
		for s.pos < len(s.src) {
			switch s.src[s.pos] {
			case '\\':
				s.pos += 2
				continue
			case c:
				s.pos++
				return true
			}
			s.pos++
		}
		s.pos = min(s.pos, len(s.src))
		return true
	case strings.HasPrefix(s.src[s.pos:], "//"):
		end := strings.IndexByte(s.src[s.pos:], '\n')
		if end < 0 {
			s.pos = len(s.src)
		} else {
			s.pos += end
		}
		return true
	case strings.HasPrefix(s.src[s.pos:], "/*"):
		end := strings.Index(s.src[s.pos+2:], "*/")
		if end < 0 {
			s.pos = len(s.src)
		} else {
			s.pos += end + 4
		}
		return true
	}
	return false
}
