package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres

	"github.com/xela07ax/closegate-platform/internal/audit"
)

type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(connString string) *AuditRepo {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		// В main мы проверим соединение через Ping
		log.Fatal(err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *AuditRepo) Close() error {
	return r.db.Close()
}

func (r *AuditRepo) WriteBatch(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_trail
	numFields := 12
	placeholderStr := ""
	vals := make([]interface{}, 0, len(entries)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range entries {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11, p+12)

		fields, _ := json.Marshal(e.Fields)

		vals = append(vals,
			e.ID, e.Category, e.Timestamp, e.User, e.SessionID, e.Machine,
			e.Scenario, e.Period, e.Entity, e.Status, fields, e.DurationMs,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO audit_trail (id, category, ts, username, session_id, machine, scenario, period, entity, status, fields, duration_ms) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}

// TrailQuery — фильтры выборки следа аудита. Пустое поле не фильтрует.
type TrailQuery struct {
	Entity   string
	Period   string
	Category string
	Limit    int
}

// FetchTrail возвращает записи аудита от новых к старым.
func (r *AuditRepo) FetchTrail(ctx context.Context, q TrailQuery) ([]audit.Entry, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	addFilter := func(col, val string) {
		if val != "" {
			args = append(args, val)
			where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	addFilter("entity", q.Entity)
	addFilter("period", q.Period)
	addFilter("category", q.Category)

	limit := q.Limit
	if limit <= 0 {
		limit = 500
	}
	if limit > 5000 {
		limit = 5000
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, category, ts, username, session_id, machine,
		       scenario, period, entity, status, fields, duration_ms
		FROM audit_trail
		WHERE %s
		ORDER BY ts DESC
		LIMIT $%d`,
		strings.Join(where, " AND "), len(args),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit trail query failed: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var fields []byte
		if err := rows.Scan(
			&e.ID, &e.Category, &e.Timestamp, &e.User, &e.SessionID, &e.Machine,
			&e.Scenario, &e.Period, &e.Entity, &e.Status, &fields, &e.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("audit trail scan failed: %w", err)
		}
		if len(fields) > 0 {
			_ = json.Unmarshal(fields, &e.Fields)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
