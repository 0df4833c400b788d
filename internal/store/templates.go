package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TemplateRecord is a registered index template.
type TemplateRecord struct {
	Name      string
	Pattern   string
	Version   int
	Body      []byte
	UpdatedAt time.Time
}

// PutTemplate registers or replaces a template. It reports whether anything
// changed; re-registering an identical template is a no-op.
func (s *Store) PutTemplate(ctx context.Context, rec TemplateRecord) (bool, error) {
	if rec.Name == "" || rec.Pattern == "" {
		return false, errors.New("template name and pattern are required")
	}

	var changed bool
	err := retryOnBusy(ctx, func() error {
		var (
			pattern string
			version int
			body    string
		)
		err := s.db.QueryRowContext(ctx,
			"SELECT pattern, version, body FROM templates WHERE name = ?", rec.Name,
		).Scan(&pattern, &version, &body)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		case pattern == rec.Pattern && version == rec.Version && bytes.Equal([]byte(body), rec.Body):
			changed = false
			return nil
		}

		_, err = s.db.ExecContext(ctx, `INSERT INTO templates (name, pattern, version, body, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				pattern = excluded.pattern,
				version = excluded.version,
				body = excluded.body,
				updated_at = excluded.updated_at`,
			rec.Name, rec.Pattern, rec.Version, string(rec.Body), formatTime(time.Now()))
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("put template %s: %w", rec.Name, err)
	}
	return changed, nil
}

// Templates lists the registered templates ordered by name.
func (s *Store) Templates(ctx context.Context) ([]TemplateRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, pattern, version, body, updated_at FROM templates ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []TemplateRecord
	for rows.Next() {
		var (
			rec       TemplateRecord
			body      string
			updatedAt string
		)
		if err := rows.Scan(&rec.Name, &rec.Pattern, &rec.Version, &body, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		rec.Body = []byte(body)
		rec.UpdatedAt = parseTime(updatedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) templatePatterns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT pattern FROM templates")
	if err != nil {
		return nil, fmt.Errorf("list template patterns: %w", err)
	}
	defer rows.Close()

	var patterns []string
	for rows.Next() {
		var pattern string
		if err := rows.Scan(&pattern); err != nil {
			return nil, fmt.Errorf("scan template pattern: %w", err)
		}
		patterns = append(patterns, pattern)
	}
	return patterns, rows.Err()
}
