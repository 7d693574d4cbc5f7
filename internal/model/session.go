package model

import "time"

// Session はサーバーサイドのログインセッションを表す。
// WebレイヤーのCookieとは独立した永続レコードであり、
// 有効性は読み取り時にExpiresAtから判定する（遅延失効）。
type Session struct {
	ID        string
	UserEmail string
	CreatedAt time.Time
	ExpiresAt time.Time
	UserAgent string
	IPAddress string
}

// IsValid はセッションが現在時刻で有効かどうかを返す。
// レコードが物理的に存在していても期限切れなら無効として扱う。
func (s *Session) IsValid() bool {
	return s.ExpiresAt.After(time.Now())
}
