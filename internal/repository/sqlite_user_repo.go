package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Naved20/new-dastawez/internal/model"
)

// SQLiteUserRepo はSQLiteを使用したユーザーリポジトリ。
// 単一ファイルバックエンドとして、PostgreSQL実装と同じ契約を提供する。
type SQLiteUserRepo struct {
	db *sql.DB
}

// NewSQLiteUserRepo はSQLiteUserRepoを生成する。
func NewSQLiteUserRepo(db *sql.DB) *SQLiteUserRepo {
	return &SQLiteUserRepo{db: db}
}

// Upsert はemailをキーにユーザーを挿入または更新する。
// SQLiteのON CONFLICT + RETURNINGにより単一ステートメントで完結する。
func (r *SQLiteUserRepo) Upsert(ctx context.Context, user *model.User) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, google_id, name, email, picture, access_token, refresh_token, created_at, last_login)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (email) DO UPDATE SET
		   google_id     = excluded.google_id,
		   name          = excluded.name,
		   picture       = excluded.picture,
		   access_token  = excluded.access_token,
		   refresh_token = excluded.refresh_token,
		   last_login    = excluded.last_login
		 RETURNING `+userColumns,
		user.ID, nullable(user.GoogleID), user.Name, user.Email, nullable(user.Picture),
		nullable(user.AccessToken), nullable(user.RefreshToken), user.CreatedAt, user.LastLogin,
	)

	merged, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return merged, nil
}

// FindByEmail は指定emailのユーザーを取得する。見つからない場合はnilを返す。
func (r *SQLiteUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *SQLiteUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// List は全ユーザーをcreated_at降順で返す。
func (r *SQLiteUserRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// Update は指定emailのユーザーを部分更新する。対象がない場合は(false, nil)。
func (r *SQLiteUserRepo) Update(ctx context.Context, email string, upd model.UserUpdate) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET
		   name       = COALESCE(?, name),
		   picture    = COALESCE(?, picture),
		   updated_at = ?
		 WHERE email = ?`,
		upd.Name, upd.Picture, time.Now(), email,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// Delete は指定emailのユーザーを削除する。対象がない場合は(false, nil)。
func (r *SQLiteUserRepo) Delete(ctx context.Context, email string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE email = ?`, email)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// Count は総ユーザー数を返す。
func (r *SQLiteUserRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// Search は名前またはemailに対する大文字小文字を区別しない部分一致検索を行う。
// SQLiteのLIKEは非ASCII文字で大文字小文字を区別するため、LOWERで正規化する。
// クエリ中のLIKEメタ文字はリテラルとして扱う。
func (r *SQLiteUserRepo) Search(ctx context.Context, query string) ([]*model.User, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE LOWER(name) LIKE LOWER(?) ESCAPE '\' OR LOWER(email) LIKE LOWER(?) ESCAPE '\'
		 ORDER BY created_at DESC
		 LIMIT ?`,
		pattern, pattern, SearchLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// compile-time interface check
var _ UserRepository = (*SQLiteUserRepo)(nil)
