// Package fieldpath addresses locations inside raw records with dot/bracket
// paths and edits records at those locations.
package fieldpath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/quill/internal/apperr"
)

// Segment is one step of a path: a mapping key or a sequence index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Path is a parsed field path.
type Path []Segment

// Key returns a key segment.
func Key(k string) Segment { return Segment{Key: k} }

// Index returns an index segment.
func Index(i int) Segment { return Segment{Index: i, IsIndex: true} }

// Parse parses a field path.
// Supports: "title", "seo.description", "sections[1].title", "sections.1.title", "grid[0][2]".
// A purely numeric dot segment is an index.
func Parse(path string) (Path, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", apperr.ErrInvalidPath)
	}

	var out Path
	for part := range strings.SplitSeq(path, ".") {
		if part == "" {
			return nil, fmt.Errorf("%w %q: empty segment", apperr.ErrInvalidPath, path)
		}

		name := part
		brackets := ""
		if i := strings.IndexByte(part, '['); i >= 0 {
			name, brackets = part[:i], part[i:]
		}

		if strings.ContainsRune(name, ']') {
			return nil, fmt.Errorf("%w %q: unbalanced brackets", apperr.ErrInvalidPath, path)
		}
		if name != "" {
			if n, ok := parseIndex(name); ok {
				out = append(out, Index(n))
			} else {
				out = append(out, Key(name))
			}
		}

		for brackets != "" {
			end := strings.IndexByte(brackets, ']')
			if brackets[0] != '[' || end < 0 {
				return nil, fmt.Errorf("%w %q: unbalanced brackets", apperr.ErrInvalidPath, path)
			}
			n, ok := parseIndex(brackets[1:end])
			if !ok {
				return nil, fmt.Errorf("%w %q: bad index %q", apperr.ErrInvalidPath, path, brackets[1:end])
			}
			out = append(out, Index(n))
			brackets = brackets[end+1:]
		}
	}

	return out, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(path string) Path {
	p, err := Parse(path)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the path in bracket form.
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if s.IsIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(s.Index))
			b.WriteByte(']')
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.Key)
	}
	return b.String()
}

func parseIndex(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}
