// Package parser reads and writes raw content records: markdown with YAML or
// TOML front matter, and plain YAML, JSON and TOML data files.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is the on-disk encoding of a record.
type Format string

// Supported formats.
const (
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
	FormatJSON     Format = "json"
	FormatTOML     Format = "toml"
)

// Front matter delimiters.
const (
	DelimYAML = "---"
	DelimTOML = "+++"
)

// ErrUnsupported is returned for files whose extension has no codec.
var ErrUnsupported = errors.New("parser: unsupported file format")

// Result holds a decoded record. Body and Delimiter are only set for markdown.
type Result struct {
	Record    map[string]any
	Body      string
	Format    Format
	Delimiter string
}

// FormatOf returns the format for path's extension.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdx":
		return FormatMarkdown, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	case ".toml":
		return FormatTOML, true
	}
	return "", false
}

// Supported reports whether path can hold a record.
func Supported(path string) bool {
	_, ok := FormatOf(path)
	return ok
}

// Parse decodes the record stored in data. The format comes from path.
// A markdown file without front matter yields an empty record and the whole
// content as body.
func Parse(path string, data []byte) (*Result, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}

	res := &Result{Format: format}
	var err error
	switch format {
	case FormatMarkdown:
		err = parseMarkdown(data, res)
	case FormatYAML:
		res.Record, err = decodeYAML(data)
	case FormatJSON:
		res.Record, err = decodeJSON(data)
	case FormatTOML:
		res.Record, err = decodeTOML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parser: %s: %w", path, err)
	}
	if res.Record == nil {
		res.Record = map[string]any{}
	}
	return res, nil
}

// Render encodes r back into its format. Markdown keeps the body untouched and
// re-wraps the record with the original delimiter, YAML when there was none.
func Render(r *Result) ([]byte, error) {
	switch r.Format {
	case FormatMarkdown:
		return renderMarkdown(r)
	case FormatYAML:
		return encodeYAML(r.Record)
	case FormatJSON:
		out, err := json.MarshalIndent(r.Record, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("parser: render json: %w", err)
		}
		return append(out, '\n'), nil
	case FormatTOML:
		out, err := toml.Marshal(r.Record)
		if err != nil {
			return nil, fmt.Errorf("parser: render toml: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, r.Format)
}

// Title returns the record's "title" string, else the body's first H1.
func Title(r *Result) string {
	if s, ok := r.Record["title"].(string); ok && s != "" {
		return s
	}
	for line := range strings.SplitSeq(r.Body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

func parseMarkdown(data []byte, res *Result) error {
	delim, block, body, ok := splitFrontMatter(data)
	if !ok {
		res.Body = string(data)
		return nil
	}
	res.Delimiter = delim
	res.Body = body

	var err error
	if delim == DelimTOML {
		res.Record, err = decodeTOML(block)
	} else {
		res.Record, err = decodeYAML(block)
	}
	if err != nil {
		return fmt.Errorf("front matter: %w", err)
	}
	return nil
}

// splitFrontMatter separates a leading front matter block from the body. The
// body starts right after the closing delimiter line.
func splitFrontMatter(data []byte) (delim string, block []byte, body string, ok bool) {
	first, rest, found := cutLine(data)
	if !found {
		return "", nil, "", false
	}
	switch string(first) {
	case DelimYAML, DelimTOML:
		delim = string(first)
	default:
		return "", nil, "", false
	}

	start := rest
	offset := 0
	for len(rest) > 0 {
		line, next, _ := cutLine(rest)
		if string(line) == delim {
			return delim, start[:offset], string(next), true
		}
		offset += len(rest) - len(next)
		rest = next
	}
	return "", nil, "", false
}

// cutLine returns the first line of data without its line ending, the
// remainder after it, and whether a line ending was present.
func cutLine(data []byte) (line, rest []byte, ended bool) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return data, nil, false
	}
	return bytes.TrimSuffix(data[:i], []byte("\r")), data[i+1:], true
}

func renderMarkdown(r *Result) ([]byte, error) {
	if r.Delimiter == "" && len(r.Record) == 0 {
		return []byte(r.Body), nil
	}

	var (
		block []byte
		err   error
	)
	delim := r.Delimiter
	if delim == DelimTOML {
		block, err = toml.Marshal(r.Record)
	} else {
		delim = DelimYAML
		block, err = encodeYAML(r.Record)
	}
	if err != nil {
		return nil, fmt.Errorf("parser: render front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(delim)
	buf.WriteByte('\n')
	if len(r.Record) > 0 {
		buf.Write(block)
		if !bytes.HasSuffix(block, []byte("\n")) {
			buf.WriteByte('\n')
		}
	}
	buf.WriteString(delim)
	buf.WriteByte('\n')
	buf.WriteString(r.Body)
	return buf.Bytes(), nil
}

func decodeYAML(data []byte) (map[string]any, error) {
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeYAML(record map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(record); err != nil {
		return nil, fmt.Errorf("parser: render yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("parser: render yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeTOML(data []byte) (map[string]any, error) {
	var out map[string]any
	if err := toml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeJSON(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return normalizeNumbers(out).(map[string]any), nil
}

// normalizeNumbers turns json.Number into int64 when integral, else float64,
// so JSON records carry the same value types as YAML and TOML ones.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, child := range t {
			t[k] = normalizeNumbers(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = normalizeNumbers(child)
		}
		return t
	}
	return v
}
