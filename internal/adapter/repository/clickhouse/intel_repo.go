package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/haoyusec/threatlens/internal/domain/querykey"
	"github.com/haoyusec/threatlens/internal/entity"
)

// ErrNotFound is returned when no record exists for a lookup key
var ErrNotFound = errors.New("threat record not found")

// IntelRepository persists threat records, one table per query type.
//
// Tables are ReplacingMergeTree(updated_at) ORDER BY (id, source): an upsert
// inserts a new version row and reads use FINAL, so concurrent writers for
// the same key collapse to last-writer-wins without application locking.
type IntelRepository struct {
	conn *Connection
}

// NewIntelRepository creates a new intel repository
func NewIntelRepository(conn *Connection) *IntelRepository {
	return &IntelRepository{conn: conn}
}

func tableFor(queryType entity.QueryType) (string, error) {
	switch queryType {
	case entity.QueryTypeIP:
		return "ip_threat_intel", nil
	case entity.QueryTypeURL:
		return "url_threat_intel", nil
	case entity.QueryTypeFile:
		return "file_threat_intel", nil
	}
	return "", fmt.Errorf("no table for query type %q", queryType)
}

// Lookup finds the cached record for (id, source). For url queries the
// querykey variant candidates are tried in priority order and the
// first hit wins; within a candidate the most recently updated row is
// preferred. Returns ErrNotFound when no candidate matches.
func (r *IntelRepository) Lookup(ctx context.Context, queryType entity.QueryType, id, source string) (*entity.ThreatRecord, error) {
	for _, candidate := range querykey.Variants(queryType, id) {
		record, err := r.lookupExact(ctx, queryType, candidate, source)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (r *IntelRepository) lookupExact(ctx context.Context, queryType entity.QueryType, id, source string) (*entity.ThreatRecord, error) {
	table, err := tableFor(queryType)
	if err != nil {
		return nil, err
	}

	var rows driver.Rows
	if queryType == entity.QueryTypeURL {
		// Providers sometimes key URL rows by their own normalized form,
		// so candidates match against the stored target_url as well.
		query := fmt.Sprintf(`
			SELECT id, type, source, target_url, reputation_score, threat_level,
			       last_update, details, created_at, updated_at
			FROM %s FINAL
			WHERE (id = ? OR target_url = ?) AND source = ?
			ORDER BY last_update DESC
			LIMIT 1
		`, table)
		rows, err = r.conn.Query(ctx, query, id, id, source)
	} else {
		query := fmt.Sprintf(`
			SELECT id, type, source, reputation_score, threat_level,
			       last_update, details, created_at, updated_at
			FROM %s FINAL
			WHERE id = ? AND source = ?
			ORDER BY last_update DESC
			LIMIT 1
		`, table)
		rows, err = r.conn.Query(ctx, query, id, source)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrNotFound
	}

	record, err := scanRecord(rows, queryType == entity.QueryTypeURL)
	if err != nil {
		return nil, fmt.Errorf("scan %s row: %w", table, err)
	}
	return record, nil
}

// Upsert writes a record keyed on (id, source). The row version carries the
// original created_at forward so repeated upserts leave it untouched;
// reputation_score, threat_level, last_update, details and updated_at take
// the new values.
func (r *IntelRepository) Upsert(ctx context.Context, record *entity.ThreatRecord) error {
	table, err := tableFor(record.Type)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	createdAt := now
	existing, err := r.lookupExact(ctx, record.Type, record.ID, record.Source)
	if err == nil {
		createdAt = existing.CreatedAt
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("upsert read existing: %w", err)
	}

	if record.Type == entity.QueryTypeURL {
		query := fmt.Sprintf(`
			INSERT INTO %s (id, type, source, target_url, reputation_score,
			                threat_level, last_update, details, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, table)
		if err := r.conn.Exec(ctx, query,
			record.ID,
			string(record.Type),
			record.Source,
			record.TargetURL,
			record.ReputationScore,
			record.ThreatLevel,
			record.LastUpdate,
			record.Details,
			createdAt,
			now,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", table, err)
		}
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, type, source, reputation_score, threat_level,
		                last_update, details, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, table)
	if err := r.conn.Exec(ctx, query,
		record.ID,
		string(record.Type),
		record.Source,
		record.ReputationScore,
		record.ThreatLevel,
		record.LastUpdate,
		record.Details,
		createdAt,
		now,
	); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// ListStale returns records whose provider data is missing or older than
// the cutoff, oldest first. Used by the scheduled refresh path.
func (r *IntelRepository) ListStale(ctx context.Context, queryType entity.QueryType, before time.Time, limit int) ([]entity.ThreatRecord, error) {
	table, err := tableFor(queryType)
	if err != nil {
		return nil, err
	}

	isURL := queryType == entity.QueryTypeURL
	columns := "id, type, source, reputation_score, threat_level, last_update, details, created_at, updated_at"
	if isURL {
		columns = "id, type, source, target_url, reputation_score, threat_level, last_update, details, created_at, updated_at"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s FINAL
		WHERE last_update IS NULL OR last_update < ?
		ORDER BY last_update ASC
		LIMIT ?
	`, columns, table)

	rows, err := r.conn.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale %s: %w", table, err)
	}
	defer rows.Close()

	var records []entity.ThreatRecord
	for rows.Next() {
		record, err := scanRecord(rows, isURL)
		if err != nil {
			return nil, fmt.Errorf("scan stale %s row: %w", table, err)
		}
		records = append(records, *record)
	}

	return records, nil
}

func scanRecord(rows driver.Rows, withTargetURL bool) (*entity.ThreatRecord, error) {
	var record entity.ThreatRecord
	var recordType string
	var lastUpdate *time.Time

	var err error
	if withTargetURL {
		err = rows.Scan(
			&record.ID,
			&recordType,
			&record.Source,
			&record.TargetURL,
			&record.ReputationScore,
			&record.ThreatLevel,
			&lastUpdate,
			&record.Details,
			&record.CreatedAt,
			&record.UpdatedAt,
		)
	} else {
		err = rows.Scan(
			&record.ID,
			&recordType,
			&record.Source,
			&record.ReputationScore,
			&record.ThreatLevel,
			&lastUpdate,
			&record.Details,
			&record.CreatedAt,
			&record.UpdatedAt,
		)
	}
	if err != nil {
		return nil, err
	}

	record.Type = entity.QueryType(recordType)
	record.LastUpdate = lastUpdate
	return &record, nil
}
