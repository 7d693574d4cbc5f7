package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Naved20/new-dastawez/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Save はセッションをsession_idをキーにUPSERTする。
func (r *PostgresSessionRepo) Save(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_email, created_at, expires_at, user_agent, ip_address)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id) DO UPDATE SET
		   user_email = EXCLUDED.user_email,
		   created_at = EXCLUDED.created_at,
		   expires_at = EXCLUDED.expires_at,
		   user_agent = EXCLUDED.user_agent,
		   ip_address = EXCLUDED.ip_address`,
		session.ID, session.UserEmail, session.CreatedAt, session.ExpiresAt,
		nullable(session.UserAgent), nullable(session.IPAddress),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。
// 期限切れはWHERE句で除外するため、存在しない場合と区別されずnilが返る。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	var userAgent, ipAddress sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT session_id, user_email, created_at, expires_at, user_agent, ip_address
		 FROM sessions
		 WHERE session_id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &session.UserEmail, &session.CreatedAt, &session.ExpiresAt, &userAgent, &ipAddress)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	session.UserAgent = userAgent.String
	session.IPAddress = ipAddress.String

	return session, nil
}

// DeleteByID は指定IDのセッションを削除する。冪等。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserEmail は指定ユーザーの全セッションを削除する。冪等。
func (r *PostgresSessionRepo) DeleteByUserEmail(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_email = $1`, email)
	if err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを一括削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
