package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"pbench/internal/indexing"
)

// BulkIndex stores actions in one transaction. An action whose index matches
// no registered template pattern, or whose source cannot be encoded, fails
// individually; an already stored (index, id) pair is a duplicate.
func (s *Store) BulkIndex(ctx context.Context, actions []indexing.Action) ([]indexing.ItemResult, error) {
	patterns, err := s.templatePatterns(ctx)
	if err != nil {
		return nil, err
	}

	var results []indexing.ItemResult
	err = retryOnBusy(ctx, func() error {
		results, err = s.bulkIndexTx(ctx, actions, patterns)
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) bulkIndexTx(ctx context.Context, actions []indexing.Action, patterns []string) ([]indexing.ItemResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin bulk tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO documents (index_name, doc_id, body, created_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("prepare document insert: %w", err)
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	results := make([]indexing.ItemResult, 0, len(actions))
	for _, action := range actions {
		item := indexing.ItemResult{Index: action.Index, ID: action.ID}
		if !matchesAny(patterns, action.Index) {
			item.Status = indexing.StatusFailed
			item.Error = fmt.Sprintf("no template matches index %q", action.Index)
			results = append(results, item)
			continue
		}
		body, err := json.Marshal(action.Source)
		if err != nil {
			item.Status = indexing.StatusFailed
			item.Error = fmt.Sprintf("encode document: %v", err)
			results = append(results, item)
			continue
		}
		res, err := stmt.ExecContext(ctx, action.Index, action.ID, string(body), now)
		if err != nil {
			return nil, fmt.Errorf("insert document %s/%s: %w", action.Index, action.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("insert document %s/%s: %w", action.Index, action.ID, err)
		}
		if affected == 0 {
			item.Status = indexing.StatusDuplicate
		} else {
			item.Status = indexing.StatusCreated
		}
		results = append(results, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bulk tx: %w", err)
	}
	return results, nil
}

func matchesAny(patterns []string, index string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, index); err == nil && ok {
			return true
		}
	}
	return false
}

// Document returns the stored JSON body, or ok=false when absent.
func (s *Store) Document(ctx context.Context, index, id string) (body []byte, ok bool, err error) {
	var raw string
	err = s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE index_name = ? AND doc_id = ?", index, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read document %s/%s: %w", index, id, err)
	}
	return []byte(raw), true, nil
}

// DocumentCounts returns the number of documents per index name.
func (s *Store) DocumentCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT index_name, COUNT(1) FROM documents GROUP BY index_name")
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			index string
			count int
		)
		if err := rows.Scan(&index, &count); err != nil {
			return nil, fmt.Errorf("scan document count: %w", err)
		}
		counts[index] = count
	}
	return counts, rows.Err()
}
