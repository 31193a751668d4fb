package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/ent0n29/agora/internal/debate"
)

const sqliteTimeLayout = time.RFC3339Nano

// SQLiteStore keeps sessions in a single-file database for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string, autoMigrate bool) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SQLiteStore{db: db}
	if autoMigrate {
		if _, err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) ([]int64, error) {
	return Migrate(ctx, s.db, goose.DialectSQLite3)
}

func (s *SQLiteStore) Create(ctx context.Context, topic string, userPosition, aiPosition debate.Position) (*debate.Session, error) {
	sess := newSession(topic, userPosition, aiPosition)
	cols, err := encodeSession(sess)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO debate_sessions (
			id, topic, user_position, ai_position, phase, current_round,
			metadata, memory, evaluation, version, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		sess.ID,
		sess.Topic,
		string(sess.UserPosition),
		string(sess.AIPosition),
		string(sess.Phase),
		sess.CurrentRound,
		string(cols.metadata),
		nullableText(cols.memory),
		nullableText(cols.evaluation),
		sess.Version,
		formatTime(sess.CreatedAt),
		formatTime(sess.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*debate.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, topic, user_position, ai_position, phase, current_round,
		        metadata, memory, evaluation, version, created_at, updated_at
		   FROM debate_sessions WHERE id=?`,
		sessionID,
	)
	var (
		sess       debate.Session
		userPos    string
		aiPos      string
		phase      string
		metadata   string
		memory     sql.NullString
		evaluation sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(
		&sess.ID,
		&sess.Topic,
		&userPos,
		&aiPos,
		&phase,
		&sess.CurrentRound,
		&metadata,
		&memory,
		&evaluation,
		&sess.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.UserPosition = debate.Position(userPos)
	sess.AIPosition = debate.Position(aiPos)
	sess.Phase = debate.Phase(phase)

	var err error
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sess.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	cols := sessionColumns{metadata: []byte(metadata)}
	if memory.Valid {
		cols.memory = []byte(memory.String)
	}
	if evaluation.Valid {
		cols.evaluation = []byte(evaluation.String)
	}
	if err := decodeSession(&sess, cols); err != nil {
		return nil, err
	}

	if sess.Turns, err = s.loadTurns(ctx, sess.ID); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SQLiteStore) loadTurns(ctx context.Context, sessionID string) ([]debate.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, persona, content, confidence, reasoning, metadata, created_at
		   FROM debate_turns WHERE session_id=? ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	turns := make([]debate.Turn, 0, 16)
	for rows.Next() {
		var (
			turn       debate.Turn
			role       string
			persona    string
			confidence sql.NullFloat64
			metadata   string
			at         string
		)
		if err := rows.Scan(
			&turn.ID,
			&role,
			&persona,
			&turn.Content,
			&confidence,
			&turn.Reasoning,
			&metadata,
			&at,
		); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.Role = debate.Role(role)
		turn.Persona = debate.Persona(persona)
		if confidence.Valid {
			v := confidence.Float64
			turn.Confidence = &v
		}
		if turn.Timestamp, err = parseTime(at); err != nil {
			return nil, err
		}
		if turn.Metadata, err = decodeStrings([]byte(metadata)); err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return turns, nil
}

func (s *SQLiteStore) Save(ctx context.Context, sess *debate.Session) error {
	cols, err := encodeSession(sess)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE debate_sessions SET
			topic=?, user_position=?, ai_position=?, phase=?, current_round=?,
			metadata=?, memory=?, evaluation=?, version=version+1, updated_at=?
		  WHERE id=? AND version=?`,
		sess.Topic,
		string(sess.UserPosition),
		string(sess.AIPosition),
		string(sess.Phase),
		sess.CurrentRound,
		string(cols.metadata),
		nullableText(cols.memory),
		nullableText(cols.evaluation),
		formatTime(now),
		sess.ID,
		sess.Version,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected == 0 {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM debate_sessions WHERE id=?`, sess.ID).Scan(&n); err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}

	var stored int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM debate_turns WHERE session_id=?`, sess.ID).Scan(&stored); err != nil {
		return fmt.Errorf("count turns: %w", err)
	}
	for seq := stored; seq < len(sess.Turns); seq++ {
		turn := sess.Turns[seq]
		metadata, err := encodeStrings(turn.Metadata)
		if err != nil {
			return err
		}
		var confidence sql.NullFloat64
		if turn.Confidence != nil {
			confidence = sql.NullFloat64{Float64: *turn.Confidence, Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO debate_turns (
				session_id, seq, id, role, persona, content, confidence, reasoning, metadata, created_at
			) VALUES (?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT (session_id, seq) DO NOTHING`,
			sess.ID,
			seq,
			turn.ID,
			string(turn.Role),
			string(turn.Persona),
			turn.Content,
			confidence,
			turn.Reasoning,
			string(metadata),
			formatTime(turn.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	sess.Version++
	sess.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM debate_sessions WHERE id=?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) PurgeIdle(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM debate_sessions WHERE updated_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("purge idle sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge idle sessions: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM debate_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Driver() string { return "sqlite" }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// formatTime uses a fixed-width layout so text comparison orders like time.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

func nullableText(raw []byte) any {
	if raw == nil {
		return nil
	}
	return string(raw)
}
