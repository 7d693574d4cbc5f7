package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/Naved20/new-dastawez/internal/model"
	"github.com/Naved20/new-dastawez/internal/repository"
)

// DefaultSessionTTL はセッション有効期間のデフォルト値（30日）。
const DefaultSessionTTL = 720 * time.Hour

// SessionMetadata はセッション発行時に記録するリクエスト情報。
type SessionMetadata struct {
	UserAgent string
	IPAddress string
}

// SessionManager はサーバーサイドセッションの発行・検証・破棄を行う。
// セッションIDが唯一の資格情報であり、失効はストアからの削除で即時に効く。
type SessionManager struct {
	sessions repository.SessionRepository
	ttl      time.Duration
}

// NewSessionManager はSessionManagerを生成する。ttlが0以下の場合はデフォルト値を使う。
func NewSessionManager(sessions repository.SessionRepository, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{sessions: sessions, ttl: ttl}
}

// Issue は指定ユーザーに新しいセッションを発行し永続化する。
// ログインごとに新しいIDを発行し、既存セッションは触らない。
func (m *SessionManager) Issue(ctx context.Context, userEmail string, meta SessionMetadata) (*model.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        id,
		UserEmail: userEmail,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
	}

	if err := m.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// Validate はセッションIDを検証し、有効なセッションを返す。
// 無効な場合はnilを返し、期限切れと不存在は区別しない。
func (m *SessionManager) Validate(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := m.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// Revoke は指定セッションを破棄する。存在しないIDでもエラーにしない。
func (m *SessionManager) Revoke(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := m.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAll は指定ユーザーの全セッションを破棄する。退会時に使用する。
func (m *SessionManager) RevokeAll(ctx context.Context, userEmail string) error {
	if err := m.sessions.DeleteByUserEmail(ctx, userEmail); err != nil {
		return fmt.Errorf("failed to revoke sessions for user: %w", err)
	}

	slog.Info("all sessions revoked", slog.String("email", userEmail))
	return nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する（32バイト、16進64文字）。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
