package frontmatter

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMetadataParse is the root of every front matter failure. Callers
	// classify per-document errors with errors.Is against it.
	ErrMetadataParse = errors.New("metadata parse error")

	// ErrMissingClosingDelimiter indicates the document started with a YAML
	// front matter delimiter but did not contain a closing delimiter.
	ErrMissingClosingDelimiter = fmt.Errorf("%w: front matter start delimiter found but closing delimiter is missing", ErrMetadataParse)

	// ErrMissingFrontMatter is returned under PolicyRequired when a document has no front matter block.
	ErrMissingFrontMatter = fmt.Errorf("%w: front matter is required but missing", ErrMetadataParse)
)

const delimiter = "---"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Split separates YAML front matter (`---` delimited) from the Markdown body.
//
// If the document does not start with a delimiter line, had is false and body
// is the full input. Both LF and CRLF line endings are recognized; a closing
// delimiter may also be the last line of the file.
func Split(content []byte) (front []byte, body []byte, had bool, err error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	nl := detectNewline(content)

	open := []byte(delimiter + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, nil
	}

	rest := content[len(open):]
	if bytes.HasPrefix(rest, open) {
		return []byte{}, rest[len(open):], true, nil
	}
	if bytes.Equal(rest, []byte(delimiter)) {
		return []byte{}, []byte{}, true, nil
	}

	closeSeq := []byte(nl + delimiter + nl)
	if idx := bytes.Index(rest, closeSeq); idx >= 0 {
		return rest[:idx+len(nl)], rest[idx+len(closeSeq):], true, nil
	}
	// Closing delimiter on the final line without a trailing newline.
	if bytes.HasSuffix(rest, []byte(nl+delimiter)) {
		return rest[:len(rest)-len(delimiter)], []byte{}, true, nil
	}
	return nil, nil, false, ErrMissingClosingDelimiter
}

// ParseYAML parses raw YAML front matter (without --- delimiters) into a map.
func ParseYAML(front []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(front)) == 0 {
		return map[string]any{}, nil
	}

	var fields map[string]any
	if err := yaml.Unmarshal(front, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

func detectNewline(content []byte) string {
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}
