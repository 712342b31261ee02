package frontmatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/inful/mdfp"
)

// Policy decides what happens to documents without a front matter block.
type Policy int

const (
	// PolicyOptional treats a missing block as empty metadata.
	PolicyOptional Policy = iota
	// PolicyRequired fails documents that have no front matter block.
	PolicyRequired
)

func (p Policy) String() string {
	if p == PolicyRequired {
		return "required"
	}
	return "optional"
}

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "optional":
		return PolicyOptional, nil
	case "required":
		return PolicyRequired, nil
	default:
		return PolicyOptional, fmt.Errorf("unknown front matter policy %q", s)
	}
}

// Metadata is the typed front matter every post carries.
type Metadata struct {
	Title       string
	Description string
	Date        string
}

// RequiredKeys lists the front matter keys a block must define.
var RequiredKeys = []string{"title", "date"}

// OptionalKeys are decoded when present and default to empty strings.
var OptionalKeys = []string{"description"}

// Document is a source file split into metadata and Markdown body.
type Document struct {
	Metadata       Metadata
	Body           []byte
	HasFrontMatter bool
	// Fingerprint identifies the document content (front matter and body).
	Fingerprint string
}

// Extract splits content and decodes its front matter under the given policy.
// All failures wrap ErrMetadataParse.
func Extract(content []byte, policy Policy) (*Document, error) {
	front, body, had, err := Split(content)
	if err != nil {
		return nil, err
	}
	doc := &Document{
		Body:           body,
		HasFrontMatter: had,
		Fingerprint:    mdfp.CalculateFingerprintFromParts(strings.TrimSuffix(string(front), "\n"), string(body)),
	}
	if !had {
		if policy == PolicyRequired {
			return nil, ErrMissingFrontMatter
		}
		return doc, nil
	}

	fields, err := ParseYAML(front)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMetadataParse, err)
	}
	meta, err := decodeMetadata(fields)
	if err != nil {
		return nil, err
	}
	doc.Metadata = meta
	return doc, nil
}

func decodeMetadata(fields map[string]any) (Metadata, error) {
	values := make(map[string]string, len(RequiredKeys)+len(OptionalKeys))
	for _, key := range append(append([]string{}, RequiredKeys...), OptionalKeys...) {
		raw, ok := fields[key]
		if !ok || raw == nil {
			continue
		}
		s, err := scalarString(raw)
		if err != nil {
			return Metadata{}, fmt.Errorf("%w: field %q: %w", ErrMetadataParse, key, err)
		}
		values[key] = s
	}
	// Null, empty and whitespace-only values count as missing.
	var missing []string
	for _, key := range RequiredKeys {
		if strings.TrimSpace(values[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Metadata{}, fmt.Errorf("%w: missing required field(s): %s", ErrMetadataParse, strings.Join(missing, ", "))
	}
	return Metadata{
		Title:       values["title"],
		Description: values["description"],
		Date:        values["date"],
	}, nil
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(time.DateOnly), nil
		}
		return t.Format(time.RFC3339), nil
	case int, int64, uint64, float64, bool:
		return fmt.Sprint(t), nil
	default:
		return "", fmt.Errorf("expected a scalar value, got %T", v)
	}
}
