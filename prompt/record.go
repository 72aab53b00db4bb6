// Package prompt derives prompt records from synchronized lists and answers
// searches over them.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParseSkipped marks a list entry that could not be turned into a record.
// It is reported per entry and never aborts a parse.
var ErrParseSkipped = errors.New("prompt entry skipped")

// Record is one prompt derived from a list entry.
type Record struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Cmd     string   `json:"cmd"`
	Slots   []string `json:"slots"`
	Tags    []string `json:"tags,omitempty"`
	Enabled bool     `json:"enabled"`
	Source  string   `json:"source"`
}

var (
	titleFields = []string{"title", "act", "name"}
	bodyFields  = []string{"body", "prompt", "content", "text"}

	slotPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)
)

// Parse turns raw list entries into records. Entries that are not objects or
// lack a title or body are skipped; each skip is returned as an error wrapping
// ErrParseSkipped. The output order follows the input.
func Parse(source string, entries []json.RawMessage) ([]Record, []error) {
	records := make([]Record, 0, len(entries))
	var skipped []error
	for i, raw := range entries {
		rec, err := parseEntry(source, raw)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("%w: %s[%d]: %v", ErrParseSkipped, source, i, err))
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

func parseEntry(source string, raw json.RawMessage) (Record, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Record{}, errors.New("not an object")
	}
	if obj == nil {
		return Record{}, errors.New("null entry")
	}

	title := firstString(obj, titleFields)
	if title == "" {
		return Record{}, errors.New("missing title")
	}
	body := firstString(obj, bodyFields)
	if body == "" {
		return Record{}, errors.New("missing body")
	}

	rec := Record{
		Title:   title,
		Body:    body,
		Cmd:     stringField(obj, "cmd"),
		Slots:   Slots(body),
		Enabled: true,
		Source:  source,
	}
	if rec.Cmd == "" {
		rec.Cmd = Slug(title)
	}
	if v, ok := obj["enable"]; ok {
		var enabled bool
		if err := json.Unmarshal(v, &enabled); err == nil {
			rec.Enabled = enabled
		}
	}
	if v, ok := obj["tags"]; ok {
		_ = json.Unmarshal(v, &rec.Tags)
	}
	return rec, nil
}

func firstString(obj map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		if s := stringField(obj, k); s != "" {
			return s
		}
	}
	return ""
}

func stringField(obj map[string]json.RawMessage, key string) string {
	v, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// Slots returns the distinct {{name}} placeholders in body, in order of first
// appearance.
func Slots(body string) []string {
	matches := slotPattern.FindAllStringSubmatch(body, -1)
	slots := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			slots = append(slots, m[1])
		}
	}
	return slots
}

// Render fills every slot of the body from vars. It fails listing every slot
// that has no value.
func (r Record) Render(vars map[string]string) (string, error) {
	var missing []string
	for _, s := range r.Slots {
		if _, ok := vars[s]; !ok {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt %q: missing values for %s", r.Cmd, strings.Join(missing, ", "))
	}
	return slotPattern.ReplaceAllStringFunc(r.Body, func(m string) string {
		name := slotPattern.FindStringSubmatch(m)[1]
		return vars[name]
	}), nil
}

// Slug turns a title into a lower-case command name: letters and digits are
// kept, every other run of characters becomes a single underscore.
func Slug(title string) string {
	var b strings.Builder
	pendingSep := false
	for _, c := range strings.ToLower(title) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(c)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
