package pgn

import (
	"sort"
	"strings"
	"time"
)

// Roster is the PGN seven tag roster in export order.
var Roster = []string{"Event", "Site", "Date", "Round", "White", "Black", "Result"}

const unknownTag = "??"

type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Headers keeps tag pairs in insertion order.
type Headers []Header

// DefaultHeaders returns the roster with placeholder values and today's date.
func DefaultHeaders(now time.Time) Headers {
	return Headers{
		{Key: "Event", Value: unknownTag},
		{Key: "Site", Value: unknownTag},
		{Key: "Date", Value: FormatDate(now)},
		{Key: "Round", Value: unknownTag},
		{Key: "White", Value: unknownTag},
		{Key: "Black", Value: unknownTag},
		{Key: "Result", Value: "*"},
	}
}

// valueReplacer maps characters the tag reader cannot read back, even when
// escaped, to close substitutes.
var valueReplacer = strings.NewReplacer("\"", "'", "\\", "/", "\r", " ", "\n", " ")

// CleanValue trims v and rewrites quotes and backslashes so the exported tag
// parses again.
func CleanValue(v string) string { return strings.TrimSpace(valueReplacer.Replace(v)) }

// FormatDate renders t as YYYY.MM.DD.
func FormatDate(t time.Time) string { return t.Format("2006.01.02") }

func (h Headers) Clone() Headers { return append(Headers(nil), h...) }

func (h Headers) Get(key string) (string, bool) {
	for _, kv := range h {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Set updates key in place or appends it. The receiver is not modified.
func (h Headers) Set(key, value string) Headers {
	out := h.Clone()
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, Header{Key: key, Value: value})
}

// Remove drops key. The receiver is not modified.
func (h Headers) Remove(key string) Headers {
	out := make(Headers, 0, len(h))
	for _, kv := range h {
		if kv.Key != key {
			out = append(out, kv)
		}
	}
	return out
}

// ValidKey reports whether key can be written as a PGN tag name.
func ValidKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z') {
			return false
		}
	}
	return true
}

// ordered returns tag pairs with the roster first and the rest sorted by key.
func ordered(tags map[string]string) Headers {
	out := make(Headers, 0, len(tags))
	for _, k := range Roster {
		if v, ok := tags[k]; ok {
			out = append(out, Header{Key: k, Value: v})
		}
	}
	rest := make([]string, 0, len(tags))
	for k := range tags {
		if !isRoster(k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, Header{Key: k, Value: tags[k]})
	}
	return out
}

func isRoster(key string) bool {
	for _, k := range Roster {
		if k == key {
			return true
		}
	}
	return false
}
