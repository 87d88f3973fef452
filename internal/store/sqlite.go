package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/docpress/internal/model"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and initializes the
// schema. Use ":memory:" for tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// The modernc driver serializes access per connection; a single connection
	// keeps counter upserts strictly ordered.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	PRAGMA foreign_keys = ON;
	CREATE TABLE IF NOT EXISTS content_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		prefix TEXT NOT NULL,
		fields TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS layouts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		assets TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS counters (
		key TEXT PRIMARY KEY,
		count INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS instances (
		id TEXT PRIMARY KEY,
		instance_code TEXT NOT NULL UNIQUE,
		serialized TEXT NOT NULL,
		raw_body TEXT NOT NULL,
		content_type_id TEXT NOT NULL REFERENCES content_types(id),
		state_id TEXT,
		creator_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS build_history (
		id TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
		creator_id TEXT,
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		delay_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_instance ON build_history(instance_id);
	CREATE INDEX IF NOT EXISTS idx_instances_content_type ON instances(content_type_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// counterKey mirrors the legacy key convention for per-content-type counters.
func counterKey(contentTypeID uuid.UUID) string {
	return "ContentType:" + contentTypeID.String()
}

func (s *SQLiteStore) CreateContentType(ctx context.Context, ct *model.ContentType) error {
	fields, err := json.Marshal(ct.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO content_types (id, name, prefix, fields) VALUES (?, ?, ?, ?)",
		ct.ID.String(), ct.Name, ct.Prefix, string(fields),
	)
	if err != nil {
		return fmt.Errorf("insert content type: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetContentType(ctx context.Context, id uuid.UUID) (*model.ContentType, error) {
	var ct model.ContentType
	var idStr, fields string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, prefix, fields FROM content_types WHERE id = ?", id.String(),
	).Scan(&idStr, &ct.Name, &ct.Prefix, &fields)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query content type: %w", err)
	}
	ct.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse content type id: %w", err)
	}
	if err := json.Unmarshal([]byte(fields), &ct.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return &ct, nil
}

func (s *SQLiteStore) CreateLayout(ctx context.Context, l *model.Layout) error {
	assets, err := json.Marshal(l.Assets)
	if err != nil {
		return fmt.Errorf("marshal assets: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO layouts (id, name, slug, assets) VALUES (?, ?, ?, ?)",
		l.ID.String(), l.Name, l.Slug, string(assets),
	)
	if err != nil {
		return fmt.Errorf("insert layout: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetLayout(ctx context.Context, id uuid.UUID) (*model.Layout, error) {
	return s.queryLayout(ctx, "SELECT id, name, slug, assets FROM layouts WHERE id = ?", id.String())
}

func (s *SQLiteStore) GetLayoutBySlug(ctx context.Context, slug string) (*model.Layout, error) {
	return s.queryLayout(ctx, "SELECT id, name, slug, assets FROM layouts WHERE slug = ?", slug)
}

func (s *SQLiteStore) queryLayout(ctx context.Context, query string, arg any) (*model.Layout, error) {
	var l model.Layout
	var idStr, assets string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&idStr, &l.Name, &l.Slug, &assets)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query layout: %w", err)
	}
	l.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse layout id: %w", err)
	}
	if err := json.Unmarshal([]byte(assets), &l.Assets); err != nil {
		return nil, fmt.Errorf("unmarshal assets: %w", err)
	}
	return &l, nil
}

// NextSequence increments the counter in a single upsert statement. The
// read-modify-write happens inside SQLite, so concurrent callers observe
// strictly increasing values with no duplicates.
func (s *SQLiteStore) NextSequence(ctx context.Context, contentTypeID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO counters (key, count) VALUES (?, 1)
		 ON CONFLICT(key) DO UPDATE SET count = count + 1
		 RETURNING count`,
		counterKey(contentTypeID),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) CreateInstance(ctx context.Context, inst *model.Instance) error {
	serialized, err := json.Marshal(inst.Serialized)
	if err != nil {
		return fmt.Errorf("marshal serialized values: %w", err)
	}
	now := time.Now()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO instances (id, instance_code, serialized, raw_body, content_type_id, state_id, creator_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID.String(), inst.InstanceCode, string(serialized), inst.RawBody,
		inst.ContentTypeID.String(), inst.StateID.String(), inst.CreatorID.String(),
		inst.CreatedAt.Unix(), inst.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetInstance(ctx context.Context, id uuid.UUID) (*model.Instance, error) {
	var inst model.Instance
	var idStr, serialized, ctID, stateID, creatorID string
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, instance_code, serialized, raw_body, content_type_id, state_id, creator_id, created_at, updated_at
		 FROM instances WHERE id = ?`, id.String(),
	).Scan(&idStr, &inst.InstanceCode, &serialized, &inst.RawBody, &ctID, &stateID, &creatorID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query instance: %w", err)
	}
	if inst.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parse instance id: %w", err)
	}
	if inst.ContentTypeID, err = uuid.Parse(ctID); err != nil {
		return nil, fmt.Errorf("parse content type id: %w", err)
	}
	inst.StateID, _ = uuid.Parse(stateID)
	inst.CreatorID, _ = uuid.Parse(creatorID)
	inst.CreatedAt = time.Unix(created, 0)
	inst.UpdatedAt = time.Unix(updated, 0)
	if err := json.Unmarshal([]byte(serialized), &inst.Serialized); err != nil {
		return nil, fmt.Errorf("unmarshal serialized values: %w", err)
	}

	// Attach the artifact URL only when a successful build exists.
	if _, err := s.LatestSuccess(ctx, inst.ID); err == nil {
		inst.DocURL = fmt.Sprintf("uploads/contents/%s/final.pdf", inst.InstanceCode)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return &inst, nil
}

func (s *SQLiteStore) UpdateInstance(ctx context.Context, inst *model.Instance) error {
	serialized, err := json.Marshal(inst.Serialized)
	if err != nil {
		return fmt.Errorf("marshal serialized values: %w", err)
	}
	inst.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE instances SET serialized = ?, raw_body = ?, state_id = ?, updated_at = ? WHERE id = ?`,
		string(serialized), inst.RawBody, inst.StateID.String(), inst.UpdatedAt.Unix(), inst.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update instance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListInstanceCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT instance_code FROM instances ORDER BY instance_code")
	if err != nil {
		return nil, fmt.Errorf("query instance codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan instance code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instance codes: %w", err)
	}
	return codes, nil
}

func (s *SQLiteStore) AppendBuildHistory(ctx context.Context, h *model.BuildHistory) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO build_history (id, instance_id, creator_id, status, exit_code, start_time, end_time, delay_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID.String(), h.InstanceID.String(), h.CreatorID.String(), string(h.Status),
		h.ExitCode, h.StartTime.UnixMilli(), h.EndTime.UnixMilli(), h.DelayMS,
	)
	if err != nil {
		return fmt.Errorf("insert build history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListBuildHistory(ctx context.Context, instanceID uuid.UUID) ([]model.BuildHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, instance_id, creator_id, status, exit_code, start_time, end_time, delay_ms
		 FROM build_history WHERE instance_id = ? ORDER BY end_time DESC, rowid DESC`,
		instanceID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query build history: %w", err)
	}
	defer rows.Close()

	var out []model.BuildHistory
	for rows.Next() {
		h, err := scanBuildHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate build history: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) LatestSuccess(ctx context.Context, instanceID uuid.UUID) (*model.BuildHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, instance_id, creator_id, status, exit_code, start_time, end_time, delay_ms
		 FROM build_history WHERE instance_id = ? AND exit_code = 0
		 ORDER BY end_time DESC, rowid DESC LIMIT 1`,
		instanceID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query latest success: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate latest success: %w", err)
		}
		return nil, ErrNotFound
	}
	return scanBuildHistory(rows)
}

func scanBuildHistory(rows *sql.Rows) (*model.BuildHistory, error) {
	var h model.BuildHistory
	var idStr, instStr, creatorStr, status string
	var start, end int64
	if err := rows.Scan(&idStr, &instStr, &creatorStr, &status, &h.ExitCode, &start, &end, &h.DelayMS); err != nil {
		return nil, fmt.Errorf("scan build history: %w", err)
	}
	var err error
	if h.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parse history id: %w", err)
	}
	if h.InstanceID, err = uuid.Parse(instStr); err != nil {
		return nil, fmt.Errorf("parse history instance id: %w", err)
	}
	h.CreatorID, _ = uuid.Parse(creatorStr)
	h.Status = model.BuildStatus(status)
	h.StartTime = time.UnixMilli(start)
	h.EndTime = time.UnixMilli(end)
	return &h, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
