package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Naved20/new-dastawez/internal/model"
)

// mongoSessionDoc はsessionsコレクションの永続化形式。
type mongoSessionDoc struct {
	SessionID string    `bson:"session_id"`
	UserEmail string    `bson:"user_email"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
	UserAgent string    `bson:"user_agent,omitempty"`
	IPAddress string    `bson:"ip_address,omitempty"`
}

func (d *mongoSessionDoc) toModel() *model.Session {
	return &model.Session{
		ID:        d.SessionID,
		UserEmail: d.UserEmail,
		CreatedAt: d.CreatedAt,
		ExpiresAt: d.ExpiresAt,
		UserAgent: d.UserAgent,
		IPAddress: d.IPAddress,
	}
}

// MongoSessionRepo はMongoDBを使用したセッションリポジトリ。
type MongoSessionRepo struct {
	coll *mongo.Collection
}

// NewMongoSessionRepo はMongoSessionRepoを生成する。
func NewMongoSessionRepo(db *mongo.Database) *MongoSessionRepo {
	return &MongoSessionRepo{coll: db.Collection("sessions")}
}

// Save はセッションを保存する。同一session_idは置き換える。
func (r *MongoSessionRepo) Save(ctx context.Context, session *model.Session) error {
	doc := mongoSessionDoc{
		SessionID: session.ID,
		UserEmail: session.UserEmail,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
		UserAgent: session.UserAgent,
		IPAddress: session.IPAddress,
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"session_id": session.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// FindByID は有効期限内のセッションを取得する。
// 期限切れと不存在は区別せず、どちらもnilを返す。
func (r *MongoSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	filter := bson.M{
		"session_id": id,
		"expires_at": bson.M{"$gt": time.Now()},
	}

	var doc mongoSessionDoc
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return doc.toModel(), nil
}

// DeleteByID は指定セッションを削除する。存在しなくてもエラーにしない。
func (r *MongoSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.M{"session_id": id}); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserEmail は指定ユーザーの全セッションを削除する。
func (r *MongoSessionRepo) DeleteByUserEmail(ctx context.Context, email string) error {
	if _, err := r.coll.DeleteMany(ctx, bson.M{"user_email": email}); err != nil {
		return fmt.Errorf("failed to delete sessions for user: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを一括削除し、削除件数を返す。
func (r *MongoSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": time.Now()}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.DeletedCount, nil
}

// compile-time interface check
var _ SessionRepository = (*MongoSessionRepo)(nil)
