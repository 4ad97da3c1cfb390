package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Config is a parsed INI style file. Every section and option lookup is
// tracked so that typos surface as unused options after parsing.
type Config struct {
	mu       sync.RWMutex
	sections map[string]*Section
	order    []string

	accessedSections map[string]struct{}
}

// New creates a new empty Config.
func New() *Config {
	return &Config{
		sections:         make(map[string]*Section),
		accessedSections: make(map[string]struct{}),
	}
}

// Load reads a configuration file. [include path] sections pull in other
// files relative to the including one; glob patterns are allowed.
func Load(path string) (*Config, error) {
	c := New()
	if err := c.loadFile(path, make(map[string]bool)); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadString parses a configuration held in memory. Include sections are
// rejected since there is no directory to resolve them against.
func LoadString(data string) (*Config, error) {
	c := New()
	if err := c.parse(strings.NewReader(data), "<string>", nil); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) loadFile(path string, visited map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: invalid path %s: %w", path, err)
	}
	if visited[abs] {
		return fmt.Errorf("config: recursive include: %s", path)
	}
	visited[abs] = true
	defer func() { visited[abs] = false }()

	f, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf("config: unable to open %s: %w", path, err)
	}
	defer f.Close()

	dir := filepath.Dir(abs)
	return c.parse(f, path, func(spec string) error {
		glob := filepath.Join(dir, spec)
		matches, err := filepath.Glob(glob)
		if err != nil {
			return fmt.Errorf("config: invalid include pattern %q: %w", spec, err)
		}
		sort.Strings(matches)
		if len(matches) == 0 && !strings.ContainsAny(glob, "*?[") {
			return fmt.Errorf("config: include file does not exist: %s", glob)
		}
		for _, m := range matches {
			if err := c.loadFile(m, visited); err != nil {
				return err
			}
		}
		return nil
	})
}

// parse reads sections from r. include is called for [include ...]
// headers; nil rejects them.
func (c *Config) parse(r io.Reader, name string, include func(spec string) error) error {
	var section string
	var options map[string]string
	flush := func() {
		if section != "" {
			c.addSection(section, options)
		}
		section, options = "", nil
	}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if idx := strings.IndexAny(line, "#;"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			header := strings.TrimSpace(line[1 : len(line)-1])
			if header == "" {
				return fmt.Errorf("config: empty section header at line %d in %s", lineNum, name)
			}
			if spec, ok := strings.CutPrefix(header, "include "); ok {
				spec = strings.TrimSpace(spec)
				if include == nil {
					return fmt.Errorf("config: include not supported at line %d in %s", lineNum, name)
				}
				if spec == "" {
					return fmt.Errorf("config: empty include at line %d in %s", lineNum, name)
				}
				if err := include(spec); err != nil {
					return err
				}
				continue
			}
			section = header
			options = make(map[string]string)
			continue
		}

		if section == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			key, value, ok = strings.Cut(line, "=")
		}
		if !ok {
			return fmt.Errorf("config: expected 'option: value' at line %d in %s", lineNum, name)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		options[key] = strings.TrimSpace(value)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("config: error reading %s: %w", name, err)
	}
	return nil
}

// addSection adds a section, merging options into an earlier section of
// the same name.
func (c *Config) addSection(name string, options map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.sections[name]; ok {
		for k, v := range options {
			existing.options[strings.ToLower(k)] = v
		}
		return
	}
	c.sections[name] = newSection(name, options)
	c.order = append(c.order, name)
}

// GetSection returns a Section by name, or error if not found.
func (c *Config) GetSection(name string) (*Section, error) {
	if sec := c.GetSectionOptional(name); sec != nil {
		return sec, nil
	}
	return nil, ErrMissingSection(name)
}

// GetSectionOptional returns a Section if it exists, or nil if not.
func (c *Config) GetSectionOptional(name string) *Section {
	c.mu.Lock()
	defer c.mu.Unlock()

	sec, ok := c.sections[name]
	if ok {
		c.accessedSections[name] = struct{}{}
	}
	return sec
}

// HasSection checks if a section exists.
func (c *Config) HasSection(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sections[name]
	return ok
}

// GetSectionNames returns all section names in file order.
func (c *Config) GetSectionNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]string, len(c.order))
	copy(result, c.order)
	return result
}

// GetPrefixSectionNames returns the section names starting with prefix.
func (c *Config) GetPrefixSectionNames(prefix string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []string
	for _, name := range c.order {
		if strings.HasPrefix(name, prefix) {
			result = append(result, name)
		}
	}
	return result
}

// GetUnusedSections returns the sections nobody asked for.
func (c *Config) GetUnusedSections() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []string
	for name := range c.sections {
		if _, ok := c.accessedSections[name]; !ok {
			result = append(result, name)
		}
	}
	sort.Strings(result)
	return result
}

// CheckUnused returns an error naming every unused section and option.
func (c *Config) CheckUnused() error {
	var problems []string
	if unused := c.GetUnusedSections(); len(unused) > 0 {
		problems = append(problems, fmt.Sprintf("unused sections %v", unused))
	}

	c.mu.RLock()
	for name, sec := range c.sections {
		if _, ok := c.accessedSections[name]; !ok {
			continue
		}
		if unused := sec.GetUnusedOptions(); len(unused) > 0 {
			problems = append(problems, fmt.Sprintf("[%s]: unused options %v", name, unused))
		}
	}
	c.mu.RUnlock()

	if len(problems) > 0 {
		sort.Strings(problems)
		return NewConfigError("", "", strings.Join(problems, "; "))
	}
	return nil
}
