// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ProfileSanitizerService はユーザーが編集可能なプロフィールフィールドを
// サニタイズし、XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayのStrictPolicyにより、HTMLタグをすべて除去したプレーンテキスト
// のみを通過させる。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ProfileSanitizerService はプロフィールフィールドのサニタイズ機能のインターフェースを定義する。
// プロフィール更新時の保存前に使用される。
type ProfileSanitizerService interface {
	// SanitizeName は表示名をサニタイズしてプレーンテキストを返す。
	// HTMLタグはすべて除去され、前後の空白はトリムされる。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeName(name string) string
}

// profileSanitizer はProfileSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type profileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは許可タグを一切持たないため、scriptタグやon*イベント属性を
// 含むあらゆるマークアップが除去される。
func NewProfileSanitizer() *profileSanitizer {
	return &profileSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeName は表示名をサニタイズしてプレーンテキストを返す。
// bluemondayはタグ除去後にエンティティをエスケープするため、
// 表示名としてそのまま保存できるようアンエスケープして返す。
func (s *profileSanitizer) SanitizeName(name string) string {
	clean := s.policy.Sanitize(name)
	return strings.TrimSpace(html.UnescapeString(clean))
}
