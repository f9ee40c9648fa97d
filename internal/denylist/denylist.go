package denylist

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/tracegate/internal/model"
)

// Category names one of the three independent pattern sets.
type Category string

const (
	CategoryURLs     Category = "urls"
	CategoryFiles    Category = "files"
	CategoryCommands Category = "commands"
)

// Tools per category. Matching is strictly scoped: a URL pattern never
// applies to a file tool and so on.
var (
	urlTools     = toolSet("browser", "browser_navigate", "http_get", "http_post", "http_put", "http_delete", "http_request")
	fileTools    = toolSet("file_read", "file_write", "file_delete")
	commandTools = toolSet("shell", "shell_exec", "exec", "command")
)

// CategoryForTool returns the pattern category checked for a tool, if any.
func CategoryForTool(tool string) (Category, bool) {
	t := strings.ToLower(tool)
	switch {
	case urlTools[t]:
		return CategoryURLs, true
	case fileTools[t]:
		return CategoryFiles, true
	case commandTools[t]:
		return CategoryCommands, true
	default:
		return "", false
	}
}

// Patterns holds the raw pattern strings organized by category.
type Patterns struct {
	URLs     []string `yaml:"urls" json:"urls"`
	Files    []string `yaml:"files" json:"files"`
	Commands []string `yaml:"commands" json:"commands"`
}

// Match describes the first pattern that blocked a resource.
type Match struct {
	Category Category `json:"category"`
	Pattern  string   `json:"pattern"`
	Reason   string   `json:"reason"`
}

type regexPattern struct {
	raw string
	re  *regexp.Regexp
}

type filePattern struct {
	raw   string
	exact string      // cleaned, lowercased path when the pattern has no wildcard
	globs []glob.Glob // compiled alternatives when it does
}

// Denylist holds compiled patterns for matching. It is read-mostly: share it
// across traces freely, but AddPattern is not safe for concurrent writers.
type Denylist struct {
	urlPatterns     []regexPattern
	filePatterns    []filePattern
	commandPatterns []regexPattern
}

// New creates a Denylist from raw patterns.
func New(p Patterns) *Denylist {
	d := &Denylist{}
	for _, u := range p.URLs {
		d.urlPatterns = append(d.urlPatterns, compileRegex(u))
	}
	for _, f := range p.Files {
		d.filePatterns = append(d.filePatterns, compileFile(f))
	}
	for _, c := range p.Commands {
		d.commandPatterns = append(d.commandPatterns, compileRegex(c))
	}
	return d
}

// NewDefault creates a Denylist with the built-in default patterns.
func NewDefault() *Denylist {
	return New(DefaultPatterns())
}

// DefaultPath returns ~/.tracegate/denylist.yaml, or "" when there is no home.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tracegate", "denylist.yaml")
}

// Load reads a denylist from a YAML file. It never fails: a missing,
// unreadable, or corrupt file yields the default pattern set. An empty path
// means DefaultPath().
func Load(path string, log zerolog.Logger) *Denylist {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		log.Debug().Msg("denylist: no home directory, using defaults")
		return NewDefault()
	}

	dl, err := LoadFile(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("denylist: configuration unavailable, using defaults")
		return NewDefault()
	}
	return dl
}

// LoadFile strictly reads and parses a denylist file.
func LoadFile(path string) (*Denylist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read denylist: %w", err)
	}
	return Parse(data)
}

// Parse decodes denylist YAML. An empty document is an empty denylist.
func Parse(data []byte) (*Denylist, error) {
	var p Patterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse denylist: %w", err)
	}
	return New(p), nil
}

// WriteDefault writes the default patterns to path, creating directories.
// An empty path means DefaultPath().
func WriteDefault(path string) (string, error) {
	return Save(path, NewDefault())
}

// Save writes the raw patterns of d to path as YAML, creating directories.
// An empty path means DefaultPath().
func Save(path string, d *Denylist) (string, error) {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return "", fmt.Errorf("cannot determine home directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create denylist directory: %w", err)
	}

	data, err := yaml.Marshal(d.Patterns())
	if err != nil {
		return "", fmt.Errorf("marshal denylist: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write denylist: %w", err)
	}
	return path, nil
}

// Check returns the first matching pattern for resource, considering only the
// category that tool belongs to.
func (d *Denylist) Check(resource, tool string) (Match, bool) {
	category, ok := CategoryForTool(tool)
	if !ok {
		return Match{}, false
	}

	switch category {
	case CategoryURLs:
		for _, p := range d.urlPatterns {
			if p.re.MatchString(resource) {
				return Match{category, p.raw, "URL matches denylist pattern: " + p.raw}, true
			}
		}

	case CategoryFiles:
		candidate := normalizePath(resource)
		for _, p := range d.filePatterns {
			if p.globs != nil {
				for _, g := range p.globs {
					if g.Match(candidate) {
						return Match{category, p.raw, "File matches denylist pattern: " + p.raw}, true
					}
				}
				continue
			}
			if candidate == p.exact || strings.EqualFold(resource, p.raw) {
				return Match{category, p.raw, "File is denylisted: " + p.raw}, true
			}
		}

	case CategoryCommands:
		for _, p := range d.commandPatterns {
			if p.re.MatchString(resource) {
				return Match{category, p.raw, "Command matches denylist pattern: " + p.raw}, true
			}
		}
	}

	return Match{}, false
}

// IsBlocked checks if a resource is blocked for the given tool type.
// Returns (blocked, reason).
func (d *Denylist) IsBlocked(resource, tool string) (bool, string) {
	m, ok := d.Check(resource, tool)
	if !ok {
		return false, ""
	}
	return true, m.Reason
}

// AddPattern appends a pattern to one category at runtime.
func (d *Denylist) AddPattern(category, pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty denylist pattern", model.ErrInvalidArgument)
	}
	switch Category(category) {
	case CategoryURLs:
		d.urlPatterns = append(d.urlPatterns, compileRegex(pattern))
	case CategoryFiles:
		d.filePatterns = append(d.filePatterns, compileFile(pattern))
	case CategoryCommands:
		d.commandPatterns = append(d.commandPatterns, compileRegex(pattern))
	default:
		return fmt.Errorf("%w: unknown denylist category %q", model.ErrInvalidArgument, category)
	}
	return nil
}

// Patterns returns a copy of the raw patterns.
func (d *Denylist) Patterns() Patterns {
	p := Patterns{
		URLs:     make([]string, 0, len(d.urlPatterns)),
		Files:    make([]string, 0, len(d.filePatterns)),
		Commands: make([]string, 0, len(d.commandPatterns)),
	}
	for _, u := range d.urlPatterns {
		p.URLs = append(p.URLs, u.raw)
	}
	for _, f := range d.filePatterns {
		p.Files = append(p.Files, f.raw)
	}
	for _, c := range d.commandPatterns {
		p.Commands = append(p.Commands, c.raw)
	}
	return p
}

// compileRegex compiles a case-insensitive search pattern. A pattern that is
// not a valid regex is matched literally.
func compileRegex(pattern string) regexPattern {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(pattern))
	}
	return regexPattern{raw: pattern, re: re}
}

func compileFile(pattern string) filePattern {
	fp := filePattern{raw: pattern}
	expanded := strings.ToLower(expandHome(pattern))

	if !strings.Contains(pattern, "*") {
		fp.exact = normalizePath(pattern)
		return fp
	}

	// Relative patterns are anchored at the right, like path suffix matching.
	candidates := []string{expanded}
	if !strings.HasPrefix(expanded, "/") && !strings.HasPrefix(expanded, "**") {
		candidates = append(candidates, "**/"+expanded)
	}
	for _, c := range candidates {
		if g, err := glob.Compile(c, '/'); err == nil {
			fp.globs = append(fp.globs, g)
		}
	}
	if fp.globs == nil {
		// Uncompilable glob: fall back to an exact comparison.
		fp.exact = normalizePath(pattern)
	}
	return fp
}

// normalizePath expands ~, cleans the path, and lowercases it.
func normalizePath(p string) string {
	if p == "" {
		return ""
	}
	return strings.ToLower(filepath.ToSlash(filepath.Clean(expandHome(p))))
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
}

func toolSet(tools ...string) map[string]bool {
	m := make(map[string]bool, len(tools))
	for _, t := range tools {
		m[t] = true
	}
	return m
}
