package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// StatusKind is the kind of a run status report.
type StatusKind string

const (
	StatusStart  StatusKind = "start"
	StatusErrors StatusKind = "errors"
	StatusFinal  StatusKind = "status"
)

// StatusRecord is one status posting of an indexing run.
type StatusRecord struct {
	ID        int64
	Kind      StatusKind
	Timestamp time.Time
	RunName   string
	SessionID string
	Hostname  string
	PID       int
	UID       int
	GID       int
	Version   string
	// TrackingID correlates the postings of one run. Zero on a start record,
	// whose own id becomes the run's tracking id.
	TrackingID int64
	Detail     string
}

// PostStatus stores rec and returns its tracking id: the new record's id for a
// start record, rec.TrackingID otherwise.
func (s *Store) PostStatus(ctx context.Context, rec StatusRecord) (int64, error) {
	switch rec.Kind {
	case StatusStart, StatusErrors, StatusFinal:
	default:
		return 0, fmt.Errorf("unknown status kind %q", rec.Kind)
	}
	if rec.Kind != StatusStart && rec.TrackingID == 0 {
		return 0, errors.New("status posting requires a tracking id")
	}

	var trackingID int64
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, `INSERT INTO status_reports
			(kind, ts, run_name, session_id, hostname, pid, uid, gid, version, tracking_id, detail)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(rec.Kind), formatTime(rec.Timestamp), rec.RunName, rec.SessionID, rec.Hostname,
			rec.PID, rec.UID, rec.GID, rec.Version, rec.TrackingID, rec.Detail)
		if err != nil {
			return err
		}
		trackingID = rec.TrackingID
		if rec.Kind == StatusStart {
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "UPDATE status_reports SET tracking_id = ? WHERE id = ?", id, id); err != nil {
				return err
			}
			trackingID = id
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("post %s status: %w", rec.Kind, err)
	}
	return trackingID, nil
}

// StatusReports returns every report correlated with trackingID, oldest first.
func (s *Store) StatusReports(ctx context.Context, trackingID int64) ([]StatusRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, ts, run_name, session_id, hostname,
			pid, uid, gid, version, tracking_id, detail
		FROM status_reports WHERE tracking_id = ? ORDER BY id`, trackingID)
	if err != nil {
		return nil, fmt.Errorf("list status reports: %w", err)
	}
	defer rows.Close()

	var out []StatusRecord
	for rows.Next() {
		var (
			rec  StatusRecord
			kind string
			ts   string
		)
		if err := rows.Scan(&rec.ID, &kind, &ts, &rec.RunName, &rec.SessionID, &rec.Hostname,
			&rec.PID, &rec.UID, &rec.GID, &rec.Version, &rec.TrackingID, &rec.Detail); err != nil {
			return nil, fmt.Errorf("scan status report: %w", err)
		}
		rec.Kind = StatusKind(kind)
		rec.Timestamp = parseTime(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}
