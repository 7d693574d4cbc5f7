package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Naved20/new-dastawez/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// userColumns はSELECT句で使用するカラム並び。Scanの順序と一致させること。
const userColumns = `id, google_id, name, email, picture, access_token, refresh_token, created_at, last_login, updated_at`

// scanUser は1行をmodel.Userに読み取る。
func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	var googleID, picture, accessToken, refreshToken sql.NullString
	var updatedAt sql.NullTime
	err := row.Scan(
		&u.ID, &googleID, &u.Name, &u.Email, &picture,
		&accessToken, &refreshToken, &u.CreatedAt, &u.LastLogin, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.GoogleID = googleID.String
	u.Picture = picture.String
	u.AccessToken = accessToken.String
	u.RefreshToken = refreshToken.String
	if updatedAt.Valid {
		u.UpdatedAt = updatedAt.Time
	}
	return u, nil
}

// Upsert はemailをキーにユーザーを挿入または更新する。
// ON CONFLICTにより既存行のidとcreated_atは保持され、
// check-then-writeの競合なしに可変フィールドのみ置き換わる。
func (r *PostgresUserRepo) Upsert(ctx context.Context, user *model.User) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, google_id, name, email, picture, access_token, refresh_token, created_at, last_login)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (email) DO UPDATE SET
		   google_id     = EXCLUDED.google_id,
		   name          = EXCLUDED.name,
		   picture       = EXCLUDED.picture,
		   access_token  = EXCLUDED.access_token,
		   refresh_token = EXCLUDED.refresh_token,
		   last_login    = EXCLUDED.last_login
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
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)

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
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)

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
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// Update は指定emailのユーザーを部分更新する。対象がない場合は(false, nil)。
func (r *PostgresUserRepo) Update(ctx context.Context, email string, upd model.UserUpdate) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET
		   name       = COALESCE($1, name),
		   picture    = COALESCE($2, picture),
		   updated_at = $3
		 WHERE email = $4`,
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
func (r *PostgresUserRepo) Delete(ctx context.Context, email string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE email = $1`, email)
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
func (r *PostgresUserRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// Search は名前またはemailに対する大文字小文字を区別しない部分一致検索を行う。
// クエリ中のLIKEメタ文字はリテラルとして扱う。
func (r *PostgresUserRepo) Search(ctx context.Context, query string) ([]*model.User, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE name ILIKE $1 ESCAPE '\' OR email ILIKE $1 ESCAPE '\'
		 ORDER BY created_at DESC
		 LIMIT $2`,
		pattern, SearchLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// collectUsers は結果セット全行をmodel.Userスライスに変換する。
func collectUsers(rows *sql.Rows) ([]*model.User, error) {
	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

// nullable は空文字列をNULLとして保存するためのヘルパー。
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// escapeLike はLIKEパターンのメタ文字（% _ \）をエスケープする。
// 検索クエリをリテラル部分文字列として扱うため、各SQLバックエンドの
// SearchはESCAPE '\'句とあわせて使用する。
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
