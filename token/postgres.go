package token

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	log "github.com/avastel/gatekeeper/logger"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Verify interface is satisfied
var _ Store = (*PostgresStore)(nil)

const (
	defaultTokenTable    = "download_tokens"
	defaultActivityTable = "download_activities"
)

// PostgresStore is a Store backed by PostgreSQL. The bounded increment
// and the conditional deactivation are single UPDATE statements so they
// stay correct under concurrent callers without any client-side
// locking.
type PostgresStore struct {
	client        *sql.DB
	table         string
	activityTable string
	logger        log.Logger

	createQuery           string
	getByIDQuery          string
	getActiveByTokenQuery string
	incrementQuery        string
	deactivateQuery       string
	replaceSecretQuery    string
	insertActivityQuery   string
	listActivitiesQuery   string
	listExpiredQuery      string
}

const tokenColumns = `id, token, user_id, order_id, product_id, file_keys,
	max_downloads, download_count, created_at, expires_at,
	regenerated_at, regeneration_reason,
	ip_validation, user_agent_validation, single_use,
	status, deactivation_reason, deactivated_at, user_ip, user_agent`

// NewPostgresStore creates a PostgreSQL Store from a string config map
// with keys connection_url (required), table, activity_table,
// max_idle_connections, max_open_connections, skip_create_table.
func NewPostgresStore(conf map[string]string, logger log.Logger) (*PostgresStore, error) {
	connURL, ok := conf["connection_url"]
	if !ok || connURL == "" {
		return nil, fmt.Errorf("missing connection_url in storage configuration")
	}

	table := conf["table"]
	if table == "" {
		table = defaultTokenTable
	}
	activityTable := conf["activity_table"]
	if activityTable == "" {
		activityTable = defaultActivityTable
	}

	db, err := sql.Open("pgx", connURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if v, ok := conf["max_idle_connections"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid max_idle_connections: %w", err)
		}
		db.SetMaxIdleConns(n)
	}
	if v, ok := conf["max_open_connections"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid max_open_connections: %w", err)
		}
		db.SetMaxOpenConns(n)
	}

	s := newPostgresStoreWithDB(db, table, activityTable, logger)

	if conf["skip_create_table"] != "true" {
		if err := s.createTables(context.Background()); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func newPostgresStoreWithDB(db *sql.DB, table, activityTable string, logger log.Logger) *PostgresStore {
	quoted := `"` + table + `"`
	quotedActivity := `"` + activityTable + `"`

	return &PostgresStore{
		client:        db,
		table:         quoted,
		activityTable: quotedActivity,
		logger:        logger,

		createQuery: `INSERT INTO ` + quoted + ` (` + tokenColumns + `)` +
			` VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		getByIDQuery: `SELECT ` + tokenColumns + ` FROM ` + quoted +
			` WHERE id = $1`,
		getActiveByTokenQuery: `SELECT ` + tokenColumns + ` FROM ` + quoted +
			` WHERE token = $1 AND status = 'active'`,
		incrementQuery: `UPDATE ` + quoted +
			` SET download_count = download_count + 1` +
			` WHERE id = $1 AND status = 'active' AND download_count < max_downloads` +
			` RETURNING ` + tokenColumns,
		deactivateQuery: `UPDATE ` + quoted +
			` SET status = 'inactive', deactivation_reason = $2, deactivated_at = $3` +
			` WHERE id = $1 AND status = 'active'`,
		replaceSecretQuery: `UPDATE ` + quoted +
			` SET token = $2, regenerated_at = $3, regeneration_reason = $4` +
			` WHERE id = $1`,
		insertActivityQuery: `INSERT INTO ` + quotedActivity +
			` (id, token_id, file_key, downloaded_at, user_ip, user_agent, file_size, content_type, success, error)` +
			` VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		listActivitiesQuery: `SELECT id, token_id, file_key, downloaded_at, user_ip, user_agent, file_size, content_type, success, error` +
			` FROM ` + quotedActivity + ` WHERE token_id = $1 ORDER BY downloaded_at DESC LIMIT $2`,
		listExpiredQuery: `SELECT ` + tokenColumns + ` FROM ` + quoted +
			` WHERE status = 'active' AND expires_at < $1 LIMIT $2`,
	}
}

func (s *PostgresStore) createTables(ctx context.Context) error {
	tokenDDL := `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
		id TEXT PRIMARY KEY,
		token TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		file_keys TEXT NOT NULL,
		max_downloads INTEGER NOT NULL,
		download_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		regenerated_at TIMESTAMPTZ,
		regeneration_reason TEXT NOT NULL DEFAULT '',
		ip_validation BOOLEAN NOT NULL DEFAULT false,
		user_agent_validation BOOLEAN NOT NULL DEFAULT false,
		single_use BOOLEAN NOT NULL DEFAULT false,
		status TEXT NOT NULL DEFAULT 'active',
		deactivation_reason TEXT NOT NULL DEFAULT '',
		deactivated_at TIMESTAMPTZ,
		user_ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT ''
	)`
	if _, err := s.client.ExecContext(ctx, tokenDDL); err != nil {
		return fmt.Errorf("failed to create token table: %w", err)
	}

	activityDDL := `CREATE TABLE IF NOT EXISTS ` + s.activityTable + ` (
		id TEXT PRIMARY KEY,
		token_id TEXT NOT NULL,
		file_key TEXT NOT NULL,
		downloaded_at TIMESTAMPTZ NOT NULL,
		user_ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		file_size BIGINT NOT NULL DEFAULT 0,
		content_type TEXT NOT NULL DEFAULT '',
		success BOOLEAN NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	)`
	if _, err := s.client.ExecContext(ctx, activityDDL); err != nil {
		return fmt.Errorf("failed to create activity table: %w", err)
	}

	return nil
}

func (s *PostgresStore) Create(ctx context.Context, t *DownloadToken) error {
	fileKeys, err := json.Marshal(t.FileKeys)
	if err != nil {
		return fmt.Errorf("failed to encode file keys: %w", err)
	}

	_, err = s.client.ExecContext(ctx, s.createQuery,
		t.ID, t.Token, t.UserID, t.OrderID, t.ProductID, string(fileKeys),
		t.MaxDownloads, t.DownloadCount, t.CreatedAt, t.ExpiresAt,
		t.RegeneratedAt, t.RegenerationReason,
		t.IPValidation, t.UserAgentValidation, t.SingleUse,
		string(t.Status), string(t.DeactivationReason), t.DeactivatedAt,
		t.UserIP, t.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*DownloadToken, error) {
	row := s.client.QueryRowContext(ctx, s.getByIDQuery, id)
	return scanToken(row)
}

func (s *PostgresStore) GetActiveByToken(ctx context.Context, tokenString string) (*DownloadToken, error) {
	row := s.client.QueryRowContext(ctx, s.getActiveByTokenQuery, tokenString)
	return scanToken(row)
}

func (s *PostgresStore) IncrementDownloadCount(ctx context.Context, id string) (*DownloadToken, error) {
	row := s.client.QueryRowContext(ctx, s.incrementQuery, id)
	t, err := scanToken(row)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// The guarded UPDATE matched no row: distinguish a missing or
	// inactive token from an exhausted quota.
	existing, getErr := s.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if existing.Status == StatusActive && existing.DownloadCount >= existing.MaxDownloads {
		return nil, ErrLimitReached
	}
	return nil, ErrNotFound
}

func (s *PostgresStore) Deactivate(ctx context.Context, id string, reason DeactivationReason, at time.Time) error {
	result, err := s.client.ExecContext(ctx, s.deactivateQuery, id, string(reason), at)
	if err != nil {
		return fmt.Errorf("failed to deactivate token: %w", err)
	}

	// Zero rows affected means the token is already inactive (a
	// successful no-op) or does not exist at all.
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) ReplaceSecret(ctx context.Context, id, newToken, reason string, at time.Time) error {
	result, err := s.client.ExecContext(ctx, s.replaceSecretQuery, id, newToken, at, reason)
	if err != nil {
		return fmt.Errorf("failed to replace token secret: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendActivity(ctx context.Context, a *DownloadActivity) error {
	_, err := s.client.ExecContext(ctx, s.insertActivityQuery,
		a.ID, a.TokenID, a.FileKey, a.DownloadedAt,
		a.UserIP, a.UserAgent, a.FileSize, a.ContentType,
		a.Success, a.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivities(ctx context.Context, tokenID string, limit int) ([]*DownloadActivity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.client.QueryContext(ctx, s.listActivitiesQuery, tokenID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var out []*DownloadActivity
	for rows.Next() {
		a := &DownloadActivity{}
		if err := rows.Scan(&a.ID, &a.TokenID, &a.FileKey, &a.DownloadedAt,
			&a.UserIP, &a.UserAgent, &a.FileSize, &a.ContentType,
			&a.Success, &a.Error); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*DownloadToken, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.client.QueryContext(ctx, s.listExpiredQuery, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired tokens: %w", err)
	}
	defer rows.Close()

	var out []*DownloadToken
	for rows.Next() {
		t, err := scanTokenRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.client.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row *sql.Row) (*DownloadToken, error) {
	t, err := scanTokenFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func scanTokenRow(rows *sql.Rows) (*DownloadToken, error) {
	return scanTokenFrom(rows)
}

func scanTokenFrom(row rowScanner) (*DownloadToken, error) {
	t := &DownloadToken{}
	var fileKeys string
	var status, deactivationReason string
	var regeneratedAt, deactivatedAt sql.NullTime

	err := row.Scan(
		&t.ID, &t.Token, &t.UserID, &t.OrderID, &t.ProductID, &fileKeys,
		&t.MaxDownloads, &t.DownloadCount, &t.CreatedAt, &t.ExpiresAt,
		&regeneratedAt, &t.RegenerationReason,
		&t.IPValidation, &t.UserAgentValidation, &t.SingleUse,
		&status, &deactivationReason, &deactivatedAt,
		&t.UserIP, &t.UserAgent,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan token: %w", err)
	}

	if err := json.Unmarshal([]byte(fileKeys), &t.FileKeys); err != nil {
		return nil, fmt.Errorf("failed to decode file keys: %w", err)
	}
	t.Status = Status(status)
	t.DeactivationReason = DeactivationReason(deactivationReason)
	if regeneratedAt.Valid {
		at := regeneratedAt.Time
		t.RegeneratedAt = &at
	}
	if deactivatedAt.Valid {
		at := deactivatedAt.Time
		t.DeactivatedAt = &at
	}
	return t, nil
}
