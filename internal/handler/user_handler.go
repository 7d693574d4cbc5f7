package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Naved20/new-dastawez/internal/middleware"
	"github.com/Naved20/new-dastawez/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// List は全ユーザーの一覧を返す。
	List(ctx context.Context) ([]*model.User, error)
	// Get はemailまたはIDでユーザーを取得する。
	Get(ctx context.Context, identifier string) (*model.User, error)
	// Update はユーザープロフィールを部分更新し、更新後のユーザーを返す。
	Update(ctx context.Context, email string, upd model.UserUpdate) (*model.User, error)
	// Withdraw はユーザーと関連セッションを削除する。
	Withdraw(ctx context.Context, email string) error
	// Count は登録ユーザー数を返す。
	Count(ctx context.Context) (int, error)
	// Search は名前またはemailの部分一致でユーザーを検索する。
	Search(ctx context.Context, query string) ([]*model.User, error)
}

// AvatarFetcher はアバター画像取得のためのインターフェース。
type AvatarFetcher interface {
	Fetch(ctx context.Context, avatarURL string) ([]byte, string, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	avatars AvatarFetcher
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, avatars AvatarFetcher) *UserHandler {
	return &UserHandler{
		service: service,
		avatars: avatars,
	}
}

// updateUserRequest はプロフィール更新リクエストのボディ。
// 指定されたフィールドのみ更新する。
type updateUserRequest struct {
	Name    *string `json:"name,omitempty"`
	Picture *string `json:"picture,omitempty"`
}

// userResponse はユーザー情報のAPIレスポンス。
// アクセストークン等の秘匿フィールドは含めない。
type userResponse struct {
	ID        string    `json:"id"`
	GoogleID  string    `json:"google_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Picture   string    `json:"picture"`
	CreatedAt time.Time `json:"created_at"`
	LastLogin time.Time `json:"last_login"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// List は全ユーザーの一覧を返す。
// GET /api/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponses(users))
}

// Count は登録ユーザー数を返す。
// GET /api/users/count
func (h *UserHandler) Count(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.Count(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"count": count})
}

// Search は名前またはemailの部分一致でユーザーを検索する。
// GET /api/users/search?q=xxx
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	users, err := h.service.Search(r.Context(), query)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponses(users))
}

// Get はemailまたはIDでユーザーを取得する。
// GET /api/users/:identifier
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")

	user, err := h.service.Get(r.Context(), identifier)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponse(user))
}

// Update はユーザープロフィールを部分更新する。
// PUT /api/users/:email
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "identifier")

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	user, err := h.service.Update(r.Context(), email, model.UserUpdate{
		Name:    req.Name,
		Picture: req.Picture,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponse(user))
}

// Delete は指定したemailのユーザーを削除する。
// DELETE /api/users/:email
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "identifier")

	if err := h.service.Withdraw(r.Context(), email); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Withdraw はログイン中ユーザー自身の退会処理を実行する。
// ユーザーと関連セッションを一括削除する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	email, err := middleware.UserEmailFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Withdraw(r.Context(), email); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Avatar はユーザーのプロフィール画像を取得して返すプロキシエンドポイント。
// GET /api/users/:email/avatar
func (h *UserHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "identifier")

	user, err := h.service.Get(r.Context(), email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if user.Picture == "" {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewAvatarFetchError("アバターが設定されていません"))
		return
	}

	data, mimeType, err := h.avatars.Fetch(r.Context(), user.Picture)
	if err != nil {
		slog.Warn("avatar fetch failed",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		handleServiceError(w, model.NewAvatarFetchError(err.Error()))
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// SetupUserRoutes はユーザー管理関連のルーティングを設定したchi.Routerを返す。
func SetupUserRoutes(service UserServiceInterface, avatars AvatarFetcher) http.Handler {
	r := chi.NewRouter()
	h := NewUserHandler(service, avatars)

	r.Route("/api/users", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/count", h.Count)
		r.Get("/search", h.Search)
		r.Delete("/me", h.Withdraw)

		// chiは同一階層で異なるパラメータ名を許さないため、identifierに統一する。
		// Update/Deleteではemailとして扱う。
		r.Get("/{identifier}", h.Get)
		r.Put("/{identifier}", h.Update)
		r.Delete("/{identifier}", h.Delete)
		r.Get("/{identifier}/avatar", h.Avatar)
	})

	return r
}

// --- ヘルパー関数 ---

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:        user.ID,
		GoogleID:  user.GoogleID,
		Name:      user.Name,
		Email:     user.Email,
		Picture:   user.Picture,
		CreatedAt: user.CreatedAt,
		LastLogin: user.LastLogin,
	}
}

// toUserResponses はユーザーのスライスをAPIレスポンスに変換する。
// nilスライスでも空のJSON配列を返す。
func toUserResponses(users []*model.User) []userResponse {
	responses := make([]userResponse, 0, len(users))
	for _, u := range users {
		responses = append(responses, toUserResponse(u))
	}
	return responses
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeEmailRequired, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeDuplicateEmail:
		return http.StatusConflict
	case model.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case model.ErrCodeAvatarFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
