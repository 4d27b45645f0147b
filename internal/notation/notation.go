// Package notation translates SAN between English piece letters and the
// letters used in other languages.
package notation

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	yaml "gopkg.in/yaml.v3"
)

//go:embed pieces.yaml
var defaultFiles embed.FS

// English is the canonical language code.
const English = "en"

var pieceLetters = []string{"N", "B", "R", "Q", "K"}

type Language struct {
	Code   string            `yaml:"-" json:"code"`
	Name   string            `yaml:"name" json:"name"`
	Pieces map[string]string `yaml:"pieces" json:"pieces"`
}

type token struct {
	local   string
	english string
}

type compiled struct {
	Language
	// tokens sorted longest first so multi-rune letters win over prefixes.
	tokens []token
}

// Table holds the piece letter tables loaded from the embedded defaults and
// an optional override directory.
type Table struct {
	mu    sync.RWMutex
	langs map[string]*compiled
}

// Load reads the embedded tables and applies *.yaml files from overrideDir.
// A language defined in two override files is an error.
func Load(overrideDir string) (*Table, error) {
	t := &Table{langs: make(map[string]*compiled)}
	raw, err := fs.ReadFile(defaultFiles, "pieces.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded pieces: %w", err)
	}
	if _, err := t.apply(raw); err != nil {
		return nil, fmt.Errorf("parse embedded pieces: %w", err)
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := t.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// MustDefault returns the embedded tables and panics if they are malformed.
func MustDefault() *Table {
	t, err := Load("")
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read notation dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	seen := make(map[string]string)
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		codes, err := t.apply(b)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for _, code := range codes {
			if prev, ok := seen[code]; ok {
				return fmt.Errorf("duplicate language %q in %s and %s", code, prev, name)
			}
			seen[code] = name
		}
	}
	return nil
}

func (t *Table) apply(b []byte) ([]string, error) {
	var m map[string]Language
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	built := make(map[string]*compiled, len(m))
	for code, lang := range m {
		code = strings.ToLower(strings.TrimSpace(code))
		lang.Code = code
		c, err := compile(lang)
		if err != nil {
			return nil, err
		}
		built[code] = c
	}
	codes := make([]string, 0, len(built))
	t.mu.Lock()
	for code, c := range built {
		t.langs[code] = c
		codes = append(codes, code)
	}
	t.mu.Unlock()
	sort.Strings(codes)
	return codes, nil
}

func compile(lang Language) (*compiled, error) {
	if lang.Code == "" {
		return nil, errors.New("language without code")
	}
	c := &compiled{Language: Language{Code: lang.Code, Name: lang.Name, Pieces: make(map[string]string, len(pieceLetters))}}
	used := make(map[string]string, len(pieceLetters))
	for _, en := range pieceLetters {
		local := norm.NFC.String(strings.TrimSpace(lang.Pieces[en]))
		if local == "" {
			return nil, fmt.Errorf("language %s: missing letter for %s", lang.Code, en)
		}
		if prev, ok := used[local]; ok {
			return nil, fmt.Errorf("language %s: %q used for both %s and %s", lang.Code, local, prev, en)
		}
		used[local] = en
		c.Pieces[en] = local
		c.tokens = append(c.tokens, token{local: local, english: en})
	}
	sort.SliceStable(c.tokens, func(i, j int) bool {
		return len([]rune(c.tokens[i].local)) > len([]rune(c.tokens[j].local))
	})
	if c.Name == "" {
		c.Name = lang.Code
	}
	return c, nil
}

func (t *Table) lookup(code string) *compiled {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.langs[strings.ToLower(strings.TrimSpace(code))]
}

// Has reports whether code names a loaded language.
func (t *Table) Has(code string) bool { return t.lookup(code) != nil }

// Languages lists the loaded languages ordered by code.
func (t *Table) Languages() []Language {
	t.mu.RLock()
	out := make([]Language, 0, len(t.langs))
	for _, c := range t.langs {
		pieces := make(map[string]string, len(c.Pieces))
		for k, v := range c.Pieces {
			pieces[k] = v
		}
		out = append(out, Language{Code: c.Code, Name: c.Name, Pieces: pieces})
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ToCanonical rewrites localized piece letters in san to English ones.
// Unknown languages leave the text as typed, apart from normalization.
func (t *Table) ToCanonical(san, lang string) string {
	s := norm.NFC.String(strings.TrimSpace(san))
	c := t.lookup(lang)
	if c == nil || c.Code == English {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		matched := false
		for _, tk := range c.tokens {
			if strings.HasPrefix(s[i:], tk.local) {
				b.WriteString(tk.english)
				i += len(tk.local)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		b.WriteString(s[i : i+size])
		i += size
	}
	return b.String()
}

// ToLocalized rewrites English piece letters in san for display in lang.
func (t *Table) ToLocalized(san, lang string) string {
	c := t.lookup(lang)
	if c == nil || c.Code == English {
		return san
	}
	var b strings.Builder
	for _, r := range san {
		if local, ok := c.Pieces[string(r)]; ok {
			b.WriteString(local)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// LocalizeAll applies ToLocalized to every move.
func (t *Table) LocalizeAll(moves []string, lang string) []string {
	out := make([]string, len(moves))
	for i, mv := range moves {
		out[i] = t.ToLocalized(mv, lang)
	}
	return out
}
