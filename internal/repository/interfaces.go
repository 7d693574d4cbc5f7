// Package repository はデータ永続化のインターフェースを定義する。
//
// usersとsessionsの2つのレコードセットに対するストレージゲートウェイであり、
// PostgreSQL、SQLite、MongoDBの3つの互換実装を提供する。
// バックエンドは起動時に設定で選択され、呼び出し側はインターフェースのみに依存する。
package repository

import (
	"context"

	"github.com/Naved20/new-dastawez/internal/model"
)

// SearchLimit は検索結果の最大件数。
const SearchLimit = 20

// UserRepository はユーザーデータの永続化インターフェース。
// 「見つからない」は正常系であり、エラーではなくnilで表現する。
// emailの一意性はゲートウェイ側で保証される（一意インデックス + ネイティブUPSERT）。
type UserRepository interface {
	// Upsert はemailをキーにユーザーを挿入または更新する。
	// 既存レコードがある場合はcreated_atとidを保持したまま可変フィールド
	// （google_id, name, picture, access_token, refresh_token, last_login）を
	// 置き換える。マージ後のレコードを返す。
	// 単一ステートメントのUPSERTを使用し、check-then-writeの競合を閉じる。
	Upsert(ctx context.Context, user *model.User) (*model.User, error)

	// FindByEmail は指定emailのユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// List は全ユーザーをcreated_at降順（新しい順）で返す。
	List(ctx context.Context) ([]*model.User, error)

	// Update は指定emailのユーザーを部分更新し、updated_atを現在時刻に設定する。
	// 対象が存在しない場合は(false, nil)を返す。
	Update(ctx context.Context, email string, upd model.UserUpdate) (bool, error)

	// Delete は指定emailのユーザーを削除する。冪等であり、
	// 対象が存在しない場合は(false, nil)を返す。
	Delete(ctx context.Context, email string) (bool, error)

	// Count は総ユーザー数を返す。
	Count(ctx context.Context) (int, error)

	// Search は名前またはemailに対する大文字小文字を区別しない部分一致検索を行う。
	// 結果はSearchLimit件で打ち切る。
	Search(ctx context.Context, query string) ([]*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
// 失効は読み取り時に判定する（遅延失効）。期限切れレコードは
// 物理的に存在していても取得結果からは除外される。
type SessionRepository interface {
	// Save はセッションをsession_idをキーにUPSERTする。
	Save(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。
	// 存在しない場合と期限切れの場合はどちらもnilを返し、両者を区別しない。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// DeleteByID は指定IDのセッションを削除する。冪等。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByUserEmail は指定ユーザーの全セッションを削除する。冪等。
	// アカウント削除や全端末ログアウトの際に呼び出し側が明示的に実行する。
	DeleteByUserEmail(ctx context.Context, email string) error

	// DeleteExpired は期限切れセッションを一括削除し、削除件数を返す。
	// 正しさのためには不要（遅延失効で十分）だが、レコード蓄積を防ぐ
	// 任意のクリーンアップジョブから使用される。
	DeleteExpired(ctx context.Context) (int64, error)
}
