// Package registry manages repos.txt: an ordered list of owner/name
// repository identifiers. The first entry is the push target (main), the
// rest are pull-sources. Blank lines and #-comments are preserved.
package registry

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Role distinguishes the push target from pull-sources.
type Role string

const (
	RoleMain       Role = "main"
	RolePullSource Role = "pull-source"
)

// Entry is one registered repository.
type Entry struct {
	Identifier string
	Role       Role
	Position   int
}

// DuplicateError is returned when adding an already registered identifier.
type DuplicateError struct{ Identifier string }

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("repository %s is already registered", e.Identifier)
}

// NotFoundError is returned when an identifier is not registered.
type NotFoundError struct{ Identifier string }

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("repository %s is not registered", e.Identifier)
}

// InvalidOperationError is returned for operations that would leave the
// registry in a bad state, such as removing the main entry.
type InvalidOperationError struct{ Reason string }

func (e *InvalidOperationError) Error() string { return e.Reason }

// Registry is the repos.txt file plus a mutex serializing mutations.
// Raw lines are kept so comments survive rewrites.
type Registry struct {
	path string

	mu    sync.Mutex
	lines []string
}

// Load reads repos.txt at path. A missing file yields an empty registry.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	content := strings.TrimRight(string(data), "\n")
	if content != "" {
		r.lines = strings.Split(content, "\n")
	}
	return r, nil
}

// isEntry reports whether a raw line carries an identifier.
func isEntry(line string) bool {
	s := strings.TrimSpace(line)
	return s != "" && !strings.HasPrefix(s, "#")
}

// ValidateIdentifier checks the owner/name form.
func ValidateIdentifier(id string) error {
	parts := strings.Split(id, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("repository identifier must be owner/name, got %q", id)
	}
	return nil
}

// List returns entries in file order. The first is main.
func (r *Registry) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries()
}

func (r *Registry) entries() []Entry {
	var out []Entry
	for _, line := range r.lines {
		if !isEntry(line) {
			continue
		}
		role := RolePullSource
		if len(out) == 0 {
			role = RoleMain
		}
		out = append(out, Entry{
			Identifier: strings.TrimSpace(line),
			Role:       role,
			Position:   len(out),
		})
	}
	return out
}

// Main returns the main identifier, or false if the registry is empty.
func (r *Registry) Main() (string, bool) {
	entries := r.List()
	if len(entries) == 0 {
		return "", false
	}
	return entries[0].Identifier, true
}

// PullSources returns every non-main entry in registry order.
func (r *Registry) PullSources() []Entry {
	var out []Entry
	for _, e := range r.List() {
		if e.Role == RolePullSource {
			out = append(out, e)
		}
	}
	return out
}

// lineIndex returns the raw line index holding id, or -1.
func (r *Registry) lineIndex(id string) int {
	for i, line := range r.lines {
		if isEntry(line) && strings.TrimSpace(line) == id {
			return i
		}
	}
	return -1
}

// Add registers a new repository. It becomes main if the registry is empty,
// a pull-source otherwise.
func (r *Registry) Add(id string) error {
	if err := ValidateIdentifier(id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lineIndex(id) >= 0 {
		return &DuplicateError{Identifier: id}
	}
	r.lines = append(r.lines, id)
	return r.save()
}

// Remove unregisters a repository. Removing main is rejected: promote
// another entry with SetMain first, so there is never an unset-main window.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.lineIndex(id)
	if idx < 0 {
		return &NotFoundError{Identifier: id}
	}
	entries := r.entries()
	if len(entries) > 0 && entries[0].Identifier == id && len(entries) > 1 {
		return &InvalidOperationError{
			Reason: fmt.Sprintf("cannot remove main repository %s: set another main first", id),
		}
	}
	r.lines = append(r.lines[:idx], r.lines[idx+1:]...)
	return r.save()
}

// SetMain promotes an already registered entry to main, demoting the
// previous main to pull-source. Registering and promoting are separate
// steps: an unknown identifier is a NotFoundError, never an implicit add.
func (r *Registry) SetMain(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.lineIndex(id)
	if idx < 0 {
		return &NotFoundError{Identifier: id}
	}

	entries := r.entries()
	if entries[0].Identifier == id {
		return nil
	}
	mainIdx := r.lineIndex(entries[0].Identifier)
	r.lines[mainIdx], r.lines[idx] = r.lines[idx], r.lines[mainIdx]
	return r.save()
}

func (r *Registry) save() error {
	content := strings.Join(r.lines, "\n")
	if content != "" {
		content += "\n"
	}
	return os.WriteFile(r.path, []byte(content), 0600)
}
