package duckdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tinytelemetry/cohortlens/internal/model"
	"go.uber.org/zap"
)

const selectPeople = `SELECT
	COALESCE(l, ''), COALESCE(gp, ''),
	COALESCE(CAST(ltcs AS VARCHAR), '[]'), COALESCE(CAST(flags AS VARCHAR), '[]'),
	COALESCE(sex, ''), COALESCE(m, ''), COALESCE(ccg, ''),
	COALESCE(lcnt, '0'), COALESCE(fcnt, '0'),
	COALESCE(age, 0), COALESCE(rsk, 0), COALESCE(d, 0),
	COALESCE(w, ''), COALESCE(cr, ''), COALESCE(cv, '')
FROM people
ORDER BY id`

// LoadPopulation reads every person. Rows whose condition or flag lists are
// not valid JSON arrays are skipped and logged.
func (s *Store) LoadPopulation(ctx context.Context) ([]model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, selectPeople)
	if err != nil {
		return nil, fmt.Errorf("duckdb: load population: %w", err)
	}
	defer rows.Close()

	var out []model.Record
	skipped := 0
	for rows.Next() {
		var r model.Record
		var ltcs, flags string
		if err := rows.Scan(
			&r.Neighbourhood, &r.Practice, &ltcs, &flags,
			&r.Sex, &r.Mosaic, &r.CCG, &r.LTCCount, &r.FlagCount,
			&r.Age, &r.Risk, &r.Deprivation, &r.Ward, &r.CR, &r.CV,
		); err != nil {
			return nil, fmt.Errorf("duckdb: scan person: %w", err)
		}
		if err := decodeList(ltcs, &r.LTCs); err != nil {
			skipped++
			s.logger.Warn("duckdb: skipping person with malformed ltcs", zap.String("ltcs", ltcs), zap.Error(err))
			continue
		}
		if err := decodeList(flags, &r.Flags); err != nil {
			skipped++
			s.logger.Warn("duckdb: skipping person with malformed flags", zap.String("flags", flags), zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("duckdb: load population: %w", err)
	}
	if skipped > 0 {
		s.logger.Warn("duckdb: population loaded with skipped rows", zap.Int("loaded", len(out)), zap.Int("skipped", skipped))
	}
	return out, nil
}

func decodeList(raw string, dst *[]string) error {
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return err
	}
	if len(list) > 0 {
		*dst = list
	}
	return nil
}

func encodeList(list []string) (string, error) {
	if len(list) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// InsertPeople inserts records in a single transaction. Derived counters are
// not stored.
func (s *Store) InsertPeople(ctx context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO people (l, gp, ltcs, flags, sex, m, ccg, lcnt, fcnt, age, rsk, d, w, cr, cv) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		ltcs, err := encodeList(r.LTCs)
		if err != nil {
			return fmt.Errorf("person %d ltcs: %w", i, err)
		}
		flags, err := encodeList(r.Flags)
		if err != nil {
			return fmt.Errorf("person %d flags: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx,
			r.Neighbourhood, r.Practice, ltcs, flags,
			r.Sex, r.Mosaic, r.CCG, r.LTCCount, r.FlagCount,
			r.Age, r.Risk, r.Deprivation, r.Ward, r.CR, r.CV,
		); err != nil {
			return fmt.Errorf("person %d insert: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// PopulationCount returns the number of stored people.
func (s *Store) PopulationCount(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM people`).Scan(&n)
	return n, err
}
