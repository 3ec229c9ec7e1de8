package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/declog/declog/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(config DatabaseConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	store := &PostgresStore{db: db}

	if err := store.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (scope, fingerprint, sender, ts, body)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope, fingerprint) DO NOTHING`,
		msg.Scope, msg.Fingerprint, msg.Sender, msg.Timestamp, msg.Body)
	if err != nil {
		return false, fmt.Errorf("error inserting message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, scope, fingerprint string) (*models.Message, error) {
	msg := &models.Message{}
	err := s.db.QueryRowContext(ctx, `
		SELECT scope, fingerprint, sender, ts, body
		FROM messages
		WHERE scope = $1 AND fingerprint = $2`,
		scope, fingerprint).
		Scan(&msg.Scope, &msg.Fingerprint, &msg.Sender, &msg.Timestamp, &msg.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) GetMessages(ctx context.Context, scope string, fingerprints []string) (map[string]*models.Message, error) {
	out := make(map[string]*models.Message, len(fingerprints))
	if len(fingerprints) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT scope, fingerprint, sender, ts, body
		FROM messages
		WHERE scope = $1 AND fingerprint = ANY($2)`,
		scope, pq.Array(fingerprints))
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.Scope, &msg.Fingerprint, &msg.Sender, &msg.Timestamp, &msg.Body); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		out[msg.Fingerprint] = msg
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListMessages(ctx context.Context, scope string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scope, fingerprint, sender, ts, body
		FROM messages
		WHERE scope = $1
		ORDER BY ts ASC, fingerprint ASC`,
		scope)
	if err != nil {
		return nil, fmt.Errorf("error listing messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.Scope, &msg.Fingerprint, &msg.Sender, &msg.Timestamp, &msg.Body); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *PostgresStore) InsertThread(ctx context.Context, thread *models.DecisionThread) (*models.DecisionThread, error) {
	if thread.ID == uuid.Nil {
		thread.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_threads (id, scope, thread_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (scope, thread_key) DO NOTHING`,
		thread.ID, thread.Scope, thread.Key)
	if err != nil {
		return nil, fmt.Errorf("error inserting thread: %w", err)
	}
	// Re-read so a concurrent creator's row wins, per the idempotent
	// skip-on-conflict contract.
	return s.GetThread(ctx, thread.Scope, thread.Key)
}

func (s *PostgresStore) GetThread(ctx context.Context, scope, key string) (*models.DecisionThread, error) {
	t := &models.DecisionThread{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, scope, thread_key, created_at
		FROM decision_threads
		WHERE scope = $1 AND thread_key = $2`,
		scope, key).
		Scan(&t.ID, &t.Scope, &t.Key, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying thread: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) LatestVersion(ctx context.Context, threadID uuid.UUID) (*models.DecisionVersion, error) {
	v := &models.DecisionVersion{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, version, status, confidence, title, outcome, decided_at, latest, created_at
		FROM decision_versions
		WHERE thread_id = $1
		ORDER BY version DESC
		LIMIT 1`,
		threadID).
		Scan(&v.ID, &v.ThreadID, &v.Version, &v.Status, &v.Confidence, &v.Title, &v.Outcome, &v.DecidedAt, &v.Latest, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying latest version: %w", err)
	}
	if err := s.loadEvidence(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *PostgresStore) loadEvidence(ctx context.Context, v *models.DecisionVersion) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint FROM evidence_refs
		WHERE record_id = $1
		ORDER BY position ASC`,
		v.ID)
	if err != nil {
		return fmt.Errorf("error querying evidence: %w", err)
	}
	defer rows.Close()

	v.Evidence = nil
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return fmt.Errorf("error scanning evidence: %w", err)
		}
		v.Evidence = append(v.Evidence, fp)
	}
	return rows.Err()
}

func (s *PostgresStore) InsertVersion(ctx context.Context, v *models.DecisionVersion) (bool, error) {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_versions (id, thread_id, version, status, confidence, title, outcome, decided_at, latest)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (thread_id, version) DO NOTHING`,
		v.ID, v.ThreadID, v.Version, v.Status, v.Confidence, v.Title, v.Outcome, v.DecidedAt, v.Latest)
	if err != nil {
		return false, fmt.Errorf("error inserting version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if err := s.AttachEvidence(ctx, v.ID, v.Evidence); err != nil {
		return true, err
	}
	return true, nil
}

func (s *PostgresStore) MarkSuperseded(ctx context.Context, threadID uuid.UUID, belowVersion int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE decision_versions
		SET latest = FALSE, status = $1
		WHERE thread_id = $2 AND version < $3 AND latest = TRUE`,
		models.DecisionSuperseded, threadID, belowVersion)
	if err != nil {
		return fmt.Errorf("error superseding versions: %w", err)
	}
	return nil
}

func (s *PostgresStore) AttachEvidence(ctx context.Context, versionID uuid.UUID, fingerprints []string) error {
	for i, fp := range fingerprints {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO evidence_refs (record_id, fingerprint, position)
			VALUES ($1, $2, $3)
			ON CONFLICT (record_id, fingerprint) DO NOTHING`,
			versionID, fp, i)
		if err != nil {
			return fmt.Errorf("error attaching evidence: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, threadID uuid.UUID) ([]*models.DecisionVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, version, status, confidence, title, outcome, decided_at, latest, created_at
		FROM decision_versions
		WHERE thread_id = $1
		ORDER BY version ASC`,
		threadID)
	if err != nil {
		return nil, fmt.Errorf("error listing versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.DecisionVersion
	for rows.Next() {
		v := &models.DecisionVersion{}
		if err := rows.Scan(&v.ID, &v.ThreadID, &v.Version, &v.Status, &v.Confidence, &v.Title, &v.Outcome, &v.DecidedAt, &v.Latest, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, v := range versions {
		if err := s.loadEvidence(ctx, v); err != nil {
			return nil, err
		}
	}
	return versions, nil
}

func (s *PostgresStore) InsertResponsibility(ctx context.Context, r *models.Responsibility) (bool, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO responsibilities (id, scope, owner, task, task_key, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (scope, owner, task_key) DO NOTHING`,
		r.ID, r.Scope, r.Owner, r.Task, r.TaskKey, r.Status, r.DueDate)
	if err != nil {
		return false, fmt.Errorf("error inserting responsibility: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if err := s.AttachResponsibilityEvidence(ctx, r.ID, r.Evidence); err != nil {
		return true, err
	}
	return true, nil
}

func (s *PostgresStore) GetResponsibility(ctx context.Context, scope, owner, taskKey string) (*models.Responsibility, error) {
	r := &models.Responsibility{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, scope, owner, task, task_key, status, due_date, created_at, updated_at
		FROM responsibilities
		WHERE scope = $1 AND owner = $2 AND task_key = $3`,
		scope, owner, taskKey).
		Scan(&r.ID, &r.Scope, &r.Owner, &r.Task, &r.TaskKey, &r.Status, &r.DueDate, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying responsibility: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) UpdateResponsibility(ctx context.Context, id uuid.UUID, status models.ResponsibilityStatus, dueDate string) error {
	if !models.ValidResponsibilityStatus(status) {
		return fmt.Errorf("invalid responsibility status %q", status)
	}
	query := `UPDATE responsibilities SET status = $1, updated_at = $2 WHERE id = $3`
	args := []any{status, time.Now().UTC(), id}
	if dueDate != "" {
		query = `UPDATE responsibilities SET status = $1, updated_at = $2, due_date = $4 WHERE id = $3`
		args = append(args, dueDate)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating responsibility: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AttachResponsibilityEvidence(ctx context.Context, id uuid.UUID, fingerprints []string) error {
	return s.AttachEvidence(ctx, id, fingerprints)
}

func (s *PostgresStore) ListResponsibilities(ctx context.Context, scope string) ([]*models.Responsibility, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scope, owner, task, task_key, status, due_date, created_at, updated_at
		FROM responsibilities
		WHERE scope = $1
		ORDER BY created_at ASC`,
		scope)
	if err != nil {
		return nil, fmt.Errorf("error listing responsibilities: %w", err)
	}
	defer rows.Close()

	var out []*models.Responsibility
	for rows.Next() {
		r := &models.Responsibility{}
		if err := rows.Scan(&r.ID, &r.Scope, &r.Owner, &r.Task, &r.TaskKey, &r.Status, &r.DueDate, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning responsibility: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
