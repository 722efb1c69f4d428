package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/frobware/go-hidbpf"
	"github.com/frobware/go-hidbpf/interpreter/store"
)

const (
	pinKindAttached = "attached"
	pinKindMap      = "map"
)

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SaveLoad records a load and its pins atomically, replacing any
// existing record for the same sysname and object.
func (s *sqliteStore) SaveLoad(ctx context.Context, rec hidbpf.LoadRecord) error {
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.StmtContext(ctx, s.stmtDeleteLoadByObject).ExecContext(ctx, rec.Sysname, rec.ObjectName); err != nil {
		return fmt.Errorf("delete previous load of %s on %s: %w", rec.ObjectName, rec.Sysname, err)
	}

	_, err = tx.StmtContext(ctx, s.stmtInsertLoad).ExecContext(ctx,
		rec.ID,
		rec.Sysname,
		rec.DeviceID,
		rec.ObjectPath,
		rec.ObjectName,
		rec.Artifacts.Strategy.String(),
		rec.Artifacts.Dir,
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert load %s: %w", rec.ID, err)
	}

	insertPin := tx.StmtContext(ctx, s.stmtInsertPin)
	for kind, paths := range map[string][]string{
		pinKindAttached: rec.Artifacts.Attached,
		pinKindMap:      rec.Artifacts.Maps,
	} {
		for i, path := range paths {
			if _, err := insertPin.ExecContext(ctx, rec.ID, kind, i, path); err != nil {
				return fmt.Errorf("insert pin %s: %w", path, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit load %s: %w", rec.ID, err)
	}

	s.logger.Debug("sql", "stmt", "SaveLoad", "id", rec.ID, "sysname", rec.Sysname,
		"object", rec.ObjectName, "duration_ms", msec(time.Since(start)))
	return nil
}

// DeleteBySysname removes every load recorded for a device and returns
// how many were removed.
func (s *sqliteStore) DeleteBySysname(ctx context.Context, sysname string) (int, error) {
	start := time.Now()
	res, err := s.stmtDeleteBySysname.ExecContext(ctx, sysname)
	if err != nil {
		return 0, fmt.Errorf("delete loads of %s: %w", sysname, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete loads of %s: %w", sysname, err)
	}
	s.logger.Debug("sql", "stmt", "DeleteBySysname", "args", []any{sysname},
		"duration_ms", msec(time.Since(start)), "rows", n)
	return int(n), nil
}

// GetLoad returns store.ErrNotFound if no load has the given id.
func (s *sqliteStore) GetLoad(ctx context.Context, id string) (hidbpf.LoadRecord, error) {
	rec, err := scanLoad(s.stmtGetLoad.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return hidbpf.LoadRecord{}, fmt.Errorf("load %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return hidbpf.LoadRecord{}, err
	}
	if err := s.fillPins(ctx, &rec); err != nil {
		return hidbpf.LoadRecord{}, err
	}
	return rec, nil
}

// ListLoads returns every recorded load, newest first.
func (s *sqliteStore) ListLoads(ctx context.Context) ([]hidbpf.LoadRecord, error) {
	rows, err := s.stmtListLoads.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list loads: %w", err)
	}
	return s.collect(ctx, rows)
}

// ListLoadsBySysname returns the loads recorded for one device, newest
// first.
func (s *sqliteStore) ListLoadsBySysname(ctx context.Context, sysname string) ([]hidbpf.LoadRecord, error) {
	rows, err := s.stmtListBySysname.QueryContext(ctx, sysname)
	if err != nil {
		return nil, fmt.Errorf("list loads of %s: %w", sysname, err)
	}
	return s.collect(ctx, rows)
}

func (s *sqliteStore) collect(ctx context.Context, rows *sql.Rows) ([]hidbpf.LoadRecord, error) {
	var recs []hidbpf.LoadRecord
	for rows.Next() {
		rec, err := scanLoad(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range recs {
		if err := s.fillPins(ctx, &recs[i]); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (s *sqliteStore) fillPins(ctx context.Context, rec *hidbpf.LoadRecord) error {
	rows, err := s.stmtListPins.QueryContext(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("list pins of %s: %w", rec.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, path string
		if err := rows.Scan(&kind, &path); err != nil {
			return err
		}
		switch kind {
		case pinKindAttached:
			rec.Artifacts.Attached = append(rec.Artifacts.Attached, path)
		case pinKindMap:
			rec.Artifacts.Maps = append(rec.Artifacts.Maps, path)
		}
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLoad(row scanner) (hidbpf.LoadRecord, error) {
	var rec hidbpf.LoadRecord
	var deviceID int64
	var strategy, createdAt string

	err := row.Scan(
		&rec.ID,
		&rec.Sysname,
		&deviceID,
		&rec.ObjectPath,
		&rec.ObjectName,
		&strategy,
		&rec.Artifacts.Dir,
		&createdAt,
	)
	if err != nil {
		return hidbpf.LoadRecord{}, err
	}

	rec.DeviceID = uint32(deviceID)
	rec.Artifacts.Strategy = hidbpf.Strategy(strategy)
	rec.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return hidbpf.LoadRecord{}, fmt.Errorf("invalid created_at timestamp %q: %w", createdAt, err)
	}
	return rec, nil
}
