package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/ent0n29/agora/internal/debate"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string, autoMigrate bool) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if autoMigrate {
		if _, err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) ([]int64, error) {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()
	return Migrate(ctx, db, goose.DialectPostgres)
}

func (s *PostgresStore) Create(ctx context.Context, topic string, userPosition, aiPosition debate.Position) (*debate.Session, error) {
	sess := newSession(topic, userPosition, aiPosition)
	cols, err := encodeSession(sess)
	if err != nil {
		return nil, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO debate_sessions (
			id, topic, user_position, ai_position, phase, current_round,
			metadata, memory, evaluation, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		sess.ID,
		sess.Topic,
		string(sess.UserPosition),
		string(sess.AIPosition),
		string(sess.Phase),
		sess.CurrentRound,
		cols.metadata,
		cols.memory,
		cols.evaluation,
		sess.Version,
		sess.CreatedAt,
		sess.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) (*debate.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, topic, user_position, ai_position, phase, current_round,
		        metadata, memory, evaluation, version, created_at, updated_at
		   FROM debate_sessions WHERE id=$1`,
		sessionID,
	)
	var (
		sess      debate.Session
		userPos   string
		aiPos     string
		phase     string
		cols      sessionColumns
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(
		&sess.ID,
		&sess.Topic,
		&userPos,
		&aiPos,
		&phase,
		&sess.CurrentRound,
		&cols.metadata,
		&cols.memory,
		&cols.evaluation,
		&sess.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.UserPosition = debate.Position(userPos)
	sess.AIPosition = debate.Position(aiPos)
	sess.Phase = debate.Phase(phase)
	sess.CreatedAt = createdAt.UTC()
	sess.UpdatedAt = updatedAt.UTC()
	if err := decodeSession(&sess, cols); err != nil {
		return nil, err
	}

	turns, err := s.loadTurns(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	sess.Turns = turns
	return &sess, nil
}

func (s *PostgresStore) loadTurns(ctx context.Context, sessionID string) ([]debate.Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, role, persona, content, confidence, reasoning, metadata, created_at
		   FROM debate_turns WHERE session_id=$1 ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	turns := make([]debate.Turn, 0, 16)
	for rows.Next() {
		var (
			turn     debate.Turn
			role     string
			persona  string
			metadata []byte
			at       time.Time
		)
		if err := rows.Scan(
			&turn.ID,
			&role,
			&persona,
			&turn.Content,
			&turn.Confidence,
			&turn.Reasoning,
			&metadata,
			&at,
		); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.Role = debate.Role(role)
		turn.Persona = debate.Persona(persona)
		turn.Timestamp = at.UTC()
		if turn.Metadata, err = decodeStrings(metadata); err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return turns, nil
}

func (s *PostgresStore) Save(ctx context.Context, sess *debate.Session) error {
	cols, err := encodeSession(sess)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE debate_sessions SET
			topic=$3, user_position=$4, ai_position=$5, phase=$6, current_round=$7,
			metadata=$8, memory=$9, evaluation=$10, version=version+1, updated_at=$11
		  WHERE id=$1 AND version=$2`,
		sess.ID,
		sess.Version,
		sess.Topic,
		string(sess.UserPosition),
		string(sess.AIPosition),
		string(sess.Phase),
		sess.CurrentRound,
		cols.metadata,
		cols.memory,
		cols.evaluation,
		now,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM debate_sessions WHERE id=$1)`, sess.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}

	var stored int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM debate_turns WHERE session_id=$1`, sess.ID).Scan(&stored); err != nil {
		return fmt.Errorf("count turns: %w", err)
	}
	for seq := stored; seq < len(sess.Turns); seq++ {
		turn := sess.Turns[seq]
		metadata, err := encodeStrings(turn.Metadata)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO debate_turns (
				session_id, seq, id, role, persona, content, confidence, reasoning, metadata, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (session_id, seq) DO NOTHING`,
			sess.ID,
			seq,
			turn.ID,
			string(turn.Role),
			string(turn.Persona),
			turn.Content,
			turn.Confidence,
			turn.Reasoning,
			metadata,
			turn.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	sess.Version++
	sess.UpdatedAt = now
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM debate_sessions WHERE id=$1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) PurgeIdle(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM debate_sessions WHERE updated_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge idle sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM debate_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Driver() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
