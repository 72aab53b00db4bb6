// Package listsync keeps named JSON list files in the application directory
// in step with their optional remote sources.
package listsync

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrNetworkUnavailable covers transport errors, timeouts and non-2xx
	// responses. The local copy is left untouched.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrPayloadInvalid marks a fetched payload that is not a list of objects.
	// The local copy is left untouched.
	ErrPayloadInvalid = errors.New("remote payload invalid")
	// ErrLocalMissing marks a list with no local file yet; readers get an
	// empty resource.
	ErrLocalMissing = errors.New("local list missing")
)

// Payload formats accepted from remote sources.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Resource is a named list as currently stored on disk.
type Resource struct {
	Name      string            `json:"name"`
	Path      string            `json:"path"`
	Source    string            `json:"source,omitempty"`
	Entries   []json.RawMessage `json:"entries"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Request names a list, where it is stored and where it comes from.
type Request struct {
	Name     string
	Path     string
	URL      string
	Header   map[string]string
	Format   string
	MergeKey string
}

func (r Request) format() string {
	if r.Format == "" {
		return FormatJSON
	}
	return strings.ToLower(r.Format)
}

// decodeEntries validates data as a JSON array whose elements are all
// objects and returns the elements.
func decodeEntries(data []byte) ([]json.RawMessage, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("not a JSON array: %w", err)
	}
	if raw == nil {
		return nil, errors.New("not a JSON array: null")
	}
	for i, e := range raw {
		if t := bytes.TrimSpace(e); len(t) == 0 || t[0] != '{' {
			return nil, fmt.Errorf("entry %d is not an object", i)
		}
	}
	return raw, nil
}

// decodeCSV turns a header row plus records into one object per record,
// keyed by the lower-cased header names.
func decodeCSV(data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	out := []json.RawMessage{}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		obj := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) && h != "" {
				obj[h] = rec[i]
			}
		}
		b, err := json.Marshal(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// mergeEntries folds remote into local by key. Remote entries win but keep a
// local "enable" flag; local entries tagged "user" that the remote does not
// carry survive. Order follows remote, then surviving local entries.
func mergeEntries(local, remote []json.RawMessage, key string) ([]json.RawMessage, error) {
	type obj = map[string]json.RawMessage

	localByKey := make(map[string]obj, len(local))
	var localOrder []string
	for _, e := range local {
		var o obj
		if err := json.Unmarshal(e, &o); err != nil {
			continue
		}
		k := keyOf(o, key)
		if k == "" {
			continue
		}
		if _, dup := localByKey[k]; !dup {
			localOrder = append(localOrder, k)
		}
		localByKey[k] = o
	}

	out := make([]json.RawMessage, 0, len(remote)+len(local))
	seen := make(map[string]bool, len(remote))
	for _, e := range remote {
		var o obj
		if err := json.Unmarshal(e, &o); err != nil {
			return nil, err
		}
		k := keyOf(o, key)
		if k != "" {
			seen[k] = true
			if prev, ok := localByKey[k]; ok {
				if enable, ok := prev["enable"]; ok {
					o["enable"] = enable
				}
			}
		}
		b, err := json.Marshal(o)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}

	for _, k := range localOrder {
		if seen[k] {
			continue
		}
		o := localByKey[k]
		if !hasTag(o, "user") {
			continue
		}
		b, err := json.Marshal(o)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func keyOf(o map[string]json.RawMessage, key string) string {
	v, ok := o[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return string(v)
	}
	return s
}

func hasTag(o map[string]json.RawMessage, tag string) bool {
	var tags []string
	if err := json.Unmarshal(o["tags"], &tags); err != nil {
		return false
	}
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
