package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Naved20/new-dastawez/internal/model"
	"github.com/Naved20/new-dastawez/internal/repository"
)

// IdentityResolver はOAuthプロバイダーのユーザー情報をローカルのユーザーレコードに解決する。
// emailを安定キーとし、初回ログインで作成、再ログインでプロフィールを同期する。
type IdentityResolver struct {
	users repository.UserRepository
}

// NewIdentityResolver はIdentityResolverを生成する。
func NewIdentityResolver(users repository.UserRepository) *IdentityResolver {
	return &IdentityResolver{users: users}
}

// ResolveAndPersist はOAuthユーザー情報をユーザーレコードに反映し、永続化後の姿を返す。
// emailを持たないプロフィールは拒否する。
// 既存ユーザーの場合、IDとcreated_atは保持され、可変フィールドとlast_loginのみ更新される。
func (r *IdentityResolver) ResolveAndPersist(ctx context.Context, info *OAuthUserInfo) (*model.User, error) {
	if info.Email == "" {
		return nil, model.NewEmailRequiredError()
	}

	now := time.Now()
	candidate := &model.User{
		ID:           uuid.New().String(),
		GoogleID:     info.ProviderUserID,
		Name:         info.Name,
		Email:        info.Email,
		Picture:      info.Picture,
		AccessToken:  info.AccessToken,
		RefreshToken: info.RefreshToken,
		CreatedAt:    now,
		LastLogin:    now,
	}

	user, err := r.users.Upsert(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to persist user identity: %w", err)
	}

	if user.ID == candidate.ID {
		slog.Info("new user created",
			slog.String("user_id", user.ID),
			slog.String("email", user.Email),
		)
	} else {
		slog.Info("existing user logged in",
			slog.String("user_id", user.ID),
			slog.String("email", user.Email),
		)
	}

	return user, nil
}
