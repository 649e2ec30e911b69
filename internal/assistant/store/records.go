package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ontime-erp/assistant/internal/assistant/intent"
)

// ErrNotFound is returned when a record with the requested identifier does
// not exist.  Callers should use errors.Is.
var ErrNotFound = errors.New("record not found")

// Record is a generic typed business record.  The field schema is owned by
// the host application, so fields are a loosely-typed bag.
type Record struct {
	ID        string         `json:"name"`
	Type      string         `json:"record_type"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Query shapes a filtered record list.
type Query struct {
	Filters map[string]intent.Filter
	// Fields is the projection; empty means all fields.
	Fields  []string
	OrderBy string
	Offset  uint
	Limit   uint
}

// fieldNamePattern whitelists field names before they are interpolated into
// json_extract paths.  Anything else is rejected as a validation error.
var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CreateRecord persists a new record of recordType populated from fields and
// returns its generated identifier.  The insert runs in its own transaction.
func (s *Store) CreateRecord(ctx context.Context, recordType string, fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal record fields: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO records (id, record_type, fields_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, recordType, string(fieldsJSON), now, now); err != nil {
		tx.Rollback()
		return "", fmt.Errorf("insert record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit record insert: %w", err)
	}
	return id, nil
}

// GetRecord fetches a single record by type and identifier.
func (s *Store) GetRecord(ctx context.Context, recordType, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, record_type, fields_json, created_at, updated_at
		FROM records WHERE record_type = ? AND id = ?
	`, recordType, id)
	return scanRecord(row)
}

// ListRecords fetches a filtered, ordered, paginated list of records.
func (s *Store) ListRecords(ctx context.Context, recordType string, q Query) ([]*Record, error) {
	where, args, err := buildFilterClauses(q.Filters)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, record_type, fields_json, created_at, updated_at FROM records WHERE record_type = ?`)
	queryArgs := append([]any{recordType}, args...)
	for _, w := range where {
		sb.WriteString(" AND ")
		sb.WriteString(w)
	}

	if q.OrderBy != "" {
		expr, err := fieldExpr(q.OrderBy)
		if err != nil {
			return nil, err
		}
		sb.WriteString(" ORDER BY " + expr)
	} else {
		sb.WriteString(" ORDER BY created_at")
	}

	limit := q.Limit
	if limit == 0 {
		limit = intent.DefaultLimit
	}
	sb.WriteString(" LIMIT ? OFFSET ?")
	queryArgs = append(queryArgs, limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if len(q.Fields) > 0 {
			rec.Fields = projectFields(rec, q.Fields)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// UpdateRecord applies fields as overwrites to an existing record.  The
// read-modify-write runs in one transaction so a failure leaves the store
// unchanged.
func (s *Store) UpdateRecord(ctx context.Context, recordType, id string, fields map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	var fieldsJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT fields_json FROM records WHERE record_type = ? AND id = ?`,
		recordType, id,
	).Scan(&fieldsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		return ErrNotFound
	}
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("load record for update: %w", err)
	}

	existing := map[string]any{}
	if err := json.Unmarshal([]byte(fieldsJSON), &existing); err != nil {
		tx.Rollback()
		return fmt.Errorf("decode record fields: %w", err)
	}
	for k, v := range fields {
		existing[k] = v
	}
	merged, err := json.Marshal(existing)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("encode record fields: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET fields_json = ?, updated_at = ? WHERE record_type = ? AND id = ?`,
		string(merged), time.Now().UTC(), recordType, id,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("update record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record update: %w", err)
	}
	return nil
}

// DeleteRecord removes a record by type and identifier.
func (s *Store) DeleteRecord(ctx context.Context, recordType, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE record_type = ? AND id = ?`, recordType, id)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("delete record: %w", err)
	}
	if n == 0 {
		tx.Rollback()
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record delete: %w", err)
	}
	return nil
}

// CountByGroup returns record counts grouped by the given field, honoring
// the same filters as ListRecords.  Records without the field fall into the
// "(none)" bucket.
func (s *Store) CountByGroup(ctx context.Context, recordType, groupBy string, filters map[string]intent.Filter) (map[string]int, error) {
	expr, err := fieldExpr(groupBy)
	if err != nil {
		return nil, err
	}
	where, args, err := buildFilterClauses(filters)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT COALESCE(CAST(%s AS TEXT), '(none)'), COUNT(*) FROM records WHERE record_type = ?`, expr)
	queryArgs := append([]any{recordType}, args...)
	for _, w := range where {
		sb.WriteString(" AND ")
		sb.WriteString(w)
	}
	sb.WriteString(" GROUP BY 1")

	rows, err := s.db.QueryContext(ctx, sb.String(), queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// --- helpers -----------------------------------------------------------------

// fieldExpr maps a logical field name onto a SQL expression.  "name" is the
// record identifier column; everything else lives in the JSON field bag.
func fieldExpr(field string) (string, error) {
	if !fieldNamePattern.MatchString(field) {
		return "", fmt.Errorf("invalid field name %q", field)
	}
	if field == "name" {
		return "id", nil
	}
	return fmt.Sprintf("json_extract(fields_json, '$.%s')", field), nil
}

// buildFilterClauses translates intent filters into SQL fragments plus bind
// arguments.  Filter keys are sorted so generated SQL is deterministic.
func buildFilterClauses(filters map[string]intent.Filter) ([]string, []any, error) {
	if len(filters) == 0 {
		return nil, nil, nil
	}
	fields := make([]string, 0, len(filters))
	for f := range filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var clauses []string
	var args []any
	for _, field := range fields {
		f := filters[field]
		expr, err := fieldExpr(field)
		if err != nil {
			return nil, nil, err
		}
		switch f.Op {
		case "=", "!=", "<", "<=", ">", ">=":
			clauses = append(clauses, fmt.Sprintf("%s %s ?", expr, f.Op))
			args = append(args, f.Value)
		case "between":
			clauses = append(clauses, fmt.Sprintf("%s >= ? AND %s <= ?", expr, expr))
			args = append(args, f.From, f.To)
		default:
			return nil, nil, fmt.Errorf("unsupported filter op %q for field %q", f.Op, field)
		}
	}
	return clauses, args, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	rec := &Record{}
	var fieldsJSON string
	err := sc.Scan(&rec.ID, &rec.Type, &fieldsJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	rec.Fields = map[string]any{}
	if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
		return nil, fmt.Errorf("decode record fields: %w", err)
	}
	return rec, nil
}

// projectFields keeps only the requested fields.  "name" is satisfied by the
// record identifier and included for callers that asked for it.
func projectFields(rec *Record, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if f == "name" {
			out["name"] = rec.ID
			continue
		}
		if v, ok := rec.Fields[f]; ok {
			out[f] = v
		}
	}
	return out
}
