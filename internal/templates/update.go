package templates

import (
	"context"
	"fmt"

	"pbench/internal/store"
)

// Registry is a backend that accepts index templates.
type Registry interface {
	PutTemplate(ctx context.Context, rec store.TemplateRecord) (bool, error)
}

// TemplateError reports a template the backend refused.
type TemplateError struct {
	Name string
	Err  error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("update template %s: %v", e.Name, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// Update registers every template with reg and returns how many changed. The
// first refusal stops the update and is returned as a *TemplateError.
func (s *Set) Update(ctx context.Context, reg Registry) (int, error) {
	changed := 0
	for _, tmpl := range s.templates {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		updated, err := reg.PutTemplate(ctx, store.TemplateRecord{
			Name:    tmpl.FullName,
			Pattern: tmpl.Pattern,
			Version: tmpl.Version,
			Body:    tmpl.Body,
		})
		if err != nil {
			return changed, &TemplateError{Name: tmpl.FullName, Err: err}
		}
		if updated {
			changed++
		}
	}
	return changed, nil
}
