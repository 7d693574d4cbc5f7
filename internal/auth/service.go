// Package auth はOAuth認証フロー、ユーザー解決、セッション管理を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Naved20/new-dastawez/internal/model"
	"github.com/Naved20/new-dastawez/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Picture        string
	AccessToken    string
	RefreshToken   string
	Provider       string // "google", "github" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth    OAuthProvider
	resolver *IdentityResolver
	sessions *SessionManager
	users    repository.UserRepository
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	resolver *IdentityResolver,
	sessions *SessionManager,
	users repository.UserRepository,
) *Service {
	return &Service{
		oauth:    oauth,
		resolver: resolver,
		sessions: sessions,
		users:    users,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理する。
// トークン交換、ユーザーレコードへの反映、セッション発行の順で行い、
// 永続化に失敗した場合はセッションを発行せずログインを中断する。
func (s *Service) HandleCallback(ctx context.Context, code string, meta SessionMetadata) (*model.Session, *model.User, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	user, err := s.resolver.ResolveAndPersist(ctx, userInfo)
	if err != nil {
		slog.Error("login aborted: identity persistence failed",
			slog.String("email", userInfo.Email),
			slog.String("error", err.Error()),
		)
		return nil, nil, err
	}

	session, err := s.sessions.Issue(ctx, user.Email, meta)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to issue session: %w", err)
	}

	return session, user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが無効、または対応するユーザーが既に削除されている場合は認証エラーを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	session, err := s.sessions.Validate(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to validate session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.users.FindByEmail(ctx, session.UserEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError()
	}

	return user, nil
}
