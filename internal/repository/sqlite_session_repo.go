package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Naved20/new-dastawez/internal/model"
)

// SQLiteSessionRepo はSQLiteを使用したセッションリポジトリ。
type SQLiteSessionRepo struct {
	db *sql.DB
}

// NewSQLiteSessionRepo はSQLiteSessionRepoを生成する。
func NewSQLiteSessionRepo(db *sql.DB) *SQLiteSessionRepo {
	return &SQLiteSessionRepo{db: db}
}

// Save はセッションをsession_idをキーにUPSERTする。
func (r *SQLiteSessionRepo) Save(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_email, created_at, expires_at, user_agent, ip_address)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET
		   user_email = excluded.user_email,
		   created_at = excluded.created_at,
		   expires_at = excluded.expires_at,
		   user_agent = excluded.user_agent,
		   ip_address = excluded.ip_address`,
		session.ID, session.UserEmail, session.CreatedAt, session.ExpiresAt,
		nullable(session.UserAgent), nullable(session.IPAddress),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。
// 失効判定はSQLのnow()ではなくアプリケーション側の現在時刻で行う
// （SQLiteはタイムゾーン付きのnow()比較が保存形式に依存するため）。
func (r *SQLiteSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	var userAgent, ipAddress sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT session_id, user_email, created_at, expires_at, user_agent, ip_address
		 FROM sessions
		 WHERE session_id = ? AND expires_at > ?`,
		id, time.Now(),
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
func (r *SQLiteSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserEmail は指定ユーザーの全セッションを削除する。冪等。
func (r *SQLiteSessionRepo) DeleteByUserEmail(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_email = ?`, email)
	if err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを一括削除し、削除件数を返す。
func (r *SQLiteSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, time.Now())
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
var _ SessionRepository = (*SQLiteSessionRepo)(nil)
