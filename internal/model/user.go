// Package model はドメインモデルを定義する。
package model

import "time"

// User はGoogle OAuthでログインしたサービス利用ユーザーを表す。
// emailが一意キーであり、外部コラボレーター（管理画面等）が依存する
// 永続化フィールド名（google_id, picture, last_login等）は変更してはならない。
type User struct {
	ID           string
	GoogleID     string
	Name         string
	Email        string
	Picture      string
	AccessToken  string
	RefreshToken string
	CreatedAt    time.Time
	LastLogin    time.Time
	UpdatedAt    time.Time
}

// UserUpdate はプロフィールの部分更新フィールドを表す。
// nilフィールドは変更しない。id、email、created_atは構造上含まれないため、
// 呼び出し側が保護フィールドを渡しても更新されない。
type UserUpdate struct {
	Name    *string
	Picture *string
}

// IsEmpty は更新対象フィールドが1つもない場合にtrueを返す。
func (u UserUpdate) IsEmpty() bool {
	return u.Name == nil && u.Picture == nil
}
