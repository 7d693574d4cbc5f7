// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, user, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeEmailRequired    = "EMAIL_REQUIRED"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeDuplicateEmail   = "DUPLICATE_EMAIL"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeAvatarFetch      = "AVATAR_FETCH_FAILED"
)

// NewEmailRequiredError はemail欠落の検証エラーを生成する。
// OAuthプロバイダーのclaimsにemailが含まれない場合、永続化は試みない。
func NewEmailRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailRequired,
		Message:  "メールアドレスが取得できませんでした。",
		Category: "validation",
		Action:   "OAuthプロバイダーでemailスコープを許可してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(identifier string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", identifier),
		Category: "user",
		Action:   "メールアドレスまたはIDを確認してください。",
	}
}

// NewDuplicateEmailError はemailの一意性違反エラーを生成する。
// ストレージゲートウェイはINSERT競合をUPDATEとして解決するため、
// このエラーが表面化するのは更新先emailが既存レコードと衝突した場合のみ。
func NewDuplicateEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "user",
		Action:   "別のメールアドレスを使用してください。",
	}
}

// NewStoreUnavailableError はストレージバックエンドの障害エラーを生成する。
// プロセスを終了させず、呼び出し側で失敗結果として回収する。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データベースに接続できませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidRequestError はリクエスト検証エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("無効なリクエストです: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewUnauthorizedError は認証が必要な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewAvatarFetchError はアバター画像の取得失敗エラーを生成する。
func NewAvatarFetchError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAvatarFetch,
		Message:  fmt.Sprintf("アバター画像の取得に失敗しました: %s", reason),
		Category: "user",
		Action:   "プロフィール画像のURLを確認してください。",
	}
}
