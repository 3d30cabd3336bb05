// Package template holds reusable message content with {{variable}}
// placeholders. The collection is small and in-memory; durability is
// not a requirement for templates.
package template

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/dniswara/wanotify/internal/model"
)

var varPattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// ExtractVariables returns the distinct {{name}} tokens found in
// content, in first-occurrence order.
func ExtractVariables(content string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range varPattern.FindAllStringSubmatch(content, -1) {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// Render substitutes {{variable}} tokens with caller-supplied values.
// Unresolved variables stay verbatim.
func Render(content string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(content, func(token string) string {
		name := varPattern.FindStringSubmatch(token)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return token
	})
}

type Store struct {
	mu        sync.RWMutex
	templates map[string]*model.Template
}

func NewStore() *Store {
	return &Store{templates: make(map[string]*model.Template)}
}

type CreateInput struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	Category string `json:"category"`
	Enabled  *bool  `json:"enabled"`
}

func (s *Store) Create(in CreateInput) (model.Template, error) {
	if in.ID == "" || in.Content == "" {
		return model.Template{}, fmt.Errorf("%w: id and content are required", model.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[in.ID]; ok {
		return model.Template{}, fmt.Errorf("template %q: %w", in.ID, model.ErrConflict)
	}

	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}

	now := time.Now().UTC()
	t := &model.Template{
		ID:        in.ID,
		Name:      in.Name,
		Content:   in.Content,
		Category:  in.Category,
		Enabled:   enabled,
		Variables: ExtractVariables(in.Content),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.templates[in.ID] = t
	return *t, nil
}

type UpdateInput struct {
	Name     *string `json:"name"`
	Content  *string `json:"content"`
	Category *string `json:"category"`
	Enabled  *bool   `json:"enabled"`
}

func (s *Store) Update(id string, in UpdateInput) (model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[id]
	if !ok {
		return model.Template{}, fmt.Errorf("template %q: %w", id, model.ErrNotFound)
	}

	if in.Name != nil {
		t.Name = *in.Name
	}
	if in.Category != nil {
		t.Category = *in.Category
	}
	if in.Enabled != nil {
		t.Enabled = *in.Enabled
	}
	if in.Content != nil && *in.Content != t.Content {
		t.Content = *in.Content
		t.Variables = ExtractVariables(t.Content)
	}
	t.UpdatedAt = time.Now().UTC()
	return *t, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[id]; !ok {
		return fmt.Errorf("template %q: %w", id, model.ErrNotFound)
	}
	delete(s.templates, id)
	return nil
}

func (s *Store) Get(id string) (model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return model.Template{}, fmt.Errorf("template %q: %w", id, model.ErrNotFound)
	}
	return *t, nil
}

// List filters the collection. No pagination: the template count stays
// small in practice.
func (s *Store) List(category string, enabled *bool) []model.Template {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Template, 0, len(s.templates))
	for _, t := range s.templates {
		if category != "" && t.Category != category {
			continue
		}
		if enabled != nil && t.Enabled != *enabled {
			continue
		}
		out = append(out, *t)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) IncrementUsage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.templates[id]; ok {
		t.UsageCount++
	}
}
