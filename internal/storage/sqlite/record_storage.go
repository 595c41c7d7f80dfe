package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dartseries/internal/interfaces"
	"github.com/ternarybob/dartseries/internal/models"
)

// RecordStorage implements interfaces.RecordStorage on the financial_records table
type RecordStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewRecordStorage creates a new RecordStorage instance
func NewRecordStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.RecordStorage {
	return &RecordStorage{
		db:     db,
		logger: logger,
	}
}

const upsertRecord = `
	INSERT INTO financial_records (corp_code, fiscal_year, quarter, revenue, operating_profit, statement_div, retrieved_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(corp_code, fiscal_year, quarter) DO UPDATE SET
		revenue = excluded.revenue,
		operating_profit = excluded.operating_profit,
		statement_div = excluded.statement_div,
		retrieved_at = excluded.retrieved_at
`

// Get retrieves one cached record
func (s *RecordStorage) Get(ctx context.Context, corp models.CorpCode, period models.FiscalPeriod) (*models.NormalizedRecord, error) {
	query := `
		SELECT revenue, operating_profit, statement_div, retrieved_at
		FROM financial_records
		WHERE corp_code = ? AND fiscal_year = ? AND quarter = ?
	`

	record := models.NormalizedRecord{CorpCode: corp, Period: period}
	var div string
	var retrievedAt int64

	err := s.db.db.QueryRowContext(ctx, query, corp.String(), period.Year, int(period.Quarter)).
		Scan(&record.Revenue, &record.OperatingProfit, &div, &retrievedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s %s: %w", corp, period, err)
	}

	record.StatementDiv = models.StatementDiv(div)
	record.RetrievedAt = time.Unix(0, retrievedAt).UTC()
	return &record, nil
}

// Put inserts or overwrites a single record
func (s *RecordStorage) Put(ctx context.Context, record *models.NormalizedRecord) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	return s.PutMany(ctx, []models.NormalizedRecord{*record})
}

// GetMany returns the cached subset of periods for one company
func (s *RecordStorage) GetMany(ctx context.Context, corp models.CorpCode, periods []models.FiscalPeriod) (map[models.FiscalPeriod]models.NormalizedRecord, error) {
	result := make(map[models.FiscalPeriod]models.NormalizedRecord, len(periods))
	if len(periods) == 0 {
		return result, nil
	}

	wanted := make(map[models.FiscalPeriod]bool, len(periods))
	minYear, maxYear := periods[0].Year, periods[0].Year
	for _, p := range periods {
		wanted[p] = true
		minYear = min(minYear, p.Year)
		maxYear = max(maxYear, p.Year)
	}

	query := `
		SELECT fiscal_year, quarter, revenue, operating_profit, statement_div, retrieved_at
		FROM financial_records
		WHERE corp_code = ? AND fiscal_year BETWEEN ? AND ?
	`

	rows, err := s.db.db.QueryContext(ctx, query, corp.String(), minYear, maxYear)
	if err != nil {
		return nil, fmt.Errorf("failed to query records for %s: %w", corp, err)
	}
	defer rows.Close()

	for rows.Next() {
		record := models.NormalizedRecord{CorpCode: corp}
		var quarter int
		var div string
		var retrievedAt int64

		if err := rows.Scan(&record.Period.Year, &quarter, &record.Revenue, &record.OperatingProfit, &div, &retrievedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		record.Period.Quarter = models.Quarter(quarter)
		if !wanted[record.Period] {
			continue
		}
		record.StatementDiv = models.StatementDiv(div)
		record.RetrievedAt = time.Unix(0, retrievedAt).UTC()
		result[record.Period] = record
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return result, nil
}

// PutMany writes all records in one transaction
func (s *RecordStorage) PutMany(ctx context.Context, records []models.NormalizedRecord) error {
	if len(records) == 0 {
		return nil
	}

	for _, r := range records {
		if r.CorpCode == "" || !r.Period.Valid() {
			return fmt.Errorf("invalid record key %q %s", r.CorpCode, r.Period)
		}
	}

	err := s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertRecord)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			retrievedAt := r.RetrievedAt
			if retrievedAt.IsZero() {
				retrievedAt = time.Now()
			}
			if _, err := stmt.ExecContext(ctx,
				r.CorpCode.String(), r.Period.Year, int(r.Period.Quarter),
				r.Revenue, r.OperatingProfit, string(r.StatementDiv), retrievedAt.UnixNano(),
			); err != nil {
				return fmt.Errorf("failed to upsert record %s %s: %w", r.CorpCode, r.Period, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug().Int("records", len(records)).Msg("Stored financial records")
	return nil
}

// Delete removes the given periods for one company and returns how many rows went away
func (s *RecordStorage) Delete(ctx context.Context, corp models.CorpCode, periods []models.FiscalPeriod) (int, error) {
	deleted := 0
	err := s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`DELETE FROM financial_records WHERE corp_code = ? AND fiscal_year = ? AND quarter = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare delete: %w", err)
		}
		defer stmt.Close()

		for _, p := range periods {
			res, err := stmt.ExecContext(ctx, corp.String(), p.Year, int(p.Quarter))
			if err != nil {
				return fmt.Errorf("failed to delete record %s %s: %w", corp, p, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			deleted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// ListCorps returns every company with at least one cached record
func (s *RecordStorage) ListCorps(ctx context.Context) ([]models.CorpCode, error) {
	rows, err := s.db.db.QueryContext(ctx, `SELECT DISTINCT corp_code FROM financial_records ORDER BY corp_code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list corps: %w", err)
	}
	defer rows.Close()

	var corps []models.CorpCode
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan corp code: %w", err)
		}
		corps = append(corps, models.CorpCode(code))
	}
	return corps, rows.Err()
}
