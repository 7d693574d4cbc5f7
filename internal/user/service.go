// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Naved20/new-dastawez/internal/model"
	"github.com/Naved20/new-dastawez/internal/repository"
)

// SessionRevoker はユーザーの全セッションを失効させるインターフェース。
type SessionRevoker interface {
	RevokeAll(ctx context.Context, userEmail string) error
}

// NameSanitizer はプロフィール名のサニタイズインターフェース。
type NameSanitizer interface {
	SanitizeName(name string) string
}

// Service はユーザー管理のサービス層。
// 一覧・検索・部分更新・退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	revoker   SessionRevoker
	sanitizer NameSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, revoker SessionRevoker, sanitizer NameSanitizer) *Service {
	return &Service{
		userRepo:  userRepo,
		revoker:   revoker,
		sanitizer: sanitizer,
	}
}

// List は全ユーザーを返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Get は識別子でユーザーを1件取得する。
// 識別子に"@"が含まれる場合はemail、それ以外はIDとして検索する。
func (s *Service) Get(ctx context.Context, identifier string) (*model.User, error) {
	var (
		user *model.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.userRepo.FindByEmail(ctx, identifier)
	} else {
		user, err = s.userRepo.FindByID(ctx, identifier)
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(identifier)
	}
	return user, nil
}

// Update は指定emailのユーザーのプロフィールを部分更新する。
// 更新対象フィールドがない場合は拒否し、名前はサニタイズしてから保存する。
func (s *Service) Update(ctx context.Context, email string, upd model.UserUpdate) (*model.User, error) {
	if email == "" {
		return nil, model.NewInvalidRequestError("email is required")
	}
	if upd.IsEmpty() {
		return nil, model.NewInvalidRequestError("no updatable fields in request")
	}

	if upd.Name != nil && s.sanitizer != nil {
		clean := s.sanitizer.SanitizeName(*upd.Name)
		upd.Name = &clean
	}

	matched, err := s.userRepo.Update(ctx, email, upd)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	if !matched {
		return nil, model.NewUserNotFoundError(email)
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("更新後のユーザーの取得に失敗しました: %w", err)
	}
	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: user → sessions。ユーザーレコードを先に消し、残ったセッションを明示的に失効させる。
func (s *Service) Withdraw(ctx context.Context, email string) error {
	deleted, err := s.userRepo.Delete(ctx, email)
	if err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewUserNotFoundError(email)
	}

	if s.revoker != nil {
		if err := s.revoker.RevokeAll(ctx, email); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	slog.Info("退会処理が完了しました", slog.String("email", email))
	return nil
}

// Count は総ユーザー数を返す。
func (s *Service) Count(ctx context.Context) (int, error) {
	count, err := s.userRepo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("ユーザー数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// Search は名前またはemailに対する部分一致検索を行う。空のクエリは拒否する。
func (s *Service) Search(ctx context.Context, query string) ([]*model.User, error) {
	if strings.TrimSpace(query) == "" {
		return nil, model.NewInvalidRequestError("search query is required")
	}

	users, err := s.userRepo.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ユーザー検索に失敗しました: %w", err)
	}
	return users, nil
}
