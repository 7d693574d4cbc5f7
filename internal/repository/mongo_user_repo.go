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

// mongoUserDoc はusersコレクションの永続化形式。
// フィールド名は管理画面等の外部コラボレーターが依存する契約であり変更不可。
type mongoUserDoc struct {
	ID           string    `bson:"_id"`
	GoogleID     string    `bson:"google_id,omitempty"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	Picture      string    `bson:"picture,omitempty"`
	AccessToken  string    `bson:"access_token,omitempty"`
	RefreshToken string    `bson:"refresh_token,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	LastLogin    time.Time `bson:"last_login"`
	UpdatedAt    time.Time `bson:"updated_at,omitempty"`
}

// toModel はドキュメントをドメインモデルに変換する。
func (d *mongoUserDoc) toModel() *model.User {
	return &model.User{
		ID:           d.ID,
		GoogleID:     d.GoogleID,
		Name:         d.Name,
		Email:        d.Email,
		Picture:      d.Picture,
		AccessToken:  d.AccessToken,
		RefreshToken: d.RefreshToken,
		CreatedAt:    d.CreatedAt,
		LastLogin:    d.LastLogin,
		UpdatedAt:    d.UpdatedAt,
	}
}

// MongoUserRepo はMongoDBを使用したユーザーリポジトリ。
type MongoUserRepo struct {
	coll *mongo.Collection
}

// NewMongoUserRepo はMongoUserRepoを生成する。
func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{coll: db.Collection("users")}
}

// Upsert はemailをキーにユーザーを挿入または更新する。
// $setOnInsertにより既存ドキュメントの_idとcreated_atは保持される。
// FindOneAndUpdateの単一操作でcheck-then-writeの競合を閉じる。
func (r *MongoUserRepo) Upsert(ctx context.Context, user *model.User) (*model.User, error) {
	filter := bson.M{"email": user.Email}
	update := bson.M{
		"$set": bson.M{
			"google_id":     user.GoogleID,
			"name":          user.Name,
			"picture":       user.Picture,
			"access_token":  user.AccessToken,
			"refresh_token": user.RefreshToken,
			"last_login":    user.LastLogin,
		},
		"$setOnInsert": bson.M{
			"_id":        user.ID,
			"created_at": user.CreatedAt,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc mongoUserDoc
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return doc.toModel(), nil
}

// FindByEmail は指定emailのユーザーを取得する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var doc mongoUserDoc
	err := r.coll.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return doc.toModel(), nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var doc mongoUserDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return doc.toModel(), nil
}

// List は全ユーザーをcreated_at降順で返す。
func (r *MongoUserRepo) List(ctx context.Context) ([]*model.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer cur.Close(ctx)

	return decodeUsers(ctx, cur)
}

// Update は指定emailのユーザーを部分更新する。対象がない場合は(false, nil)。
func (r *MongoUserRepo) Update(ctx context.Context, email string, upd model.UserUpdate) (bool, error) {
	set := bson.M{"updated_at": time.Now()}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Picture != nil {
		set["picture"] = *upd.Picture
	}

	result, err := r.coll.UpdateOne(ctx, bson.M{"email": email}, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("failed to update user: %w", err)
	}
	return result.MatchedCount > 0, nil
}

// Delete は指定emailのユーザーを削除する。対象がない場合は(false, nil)。
func (r *MongoUserRepo) Delete(ctx context.Context, email string) (bool, error) {
	result, err := r.coll.DeleteOne(ctx, bson.M{"email": email})
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	return result.DeletedCount > 0, nil
}

// Count は総ユーザー数を返す。
func (r *MongoUserRepo) Count(ctx context.Context) (int, error) {
	count, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return int(count), nil
}

// Search は名前またはemailに対する大文字小文字を区別しない部分一致検索を行う。
// 入力はリテラル部分文字列として扱い、正規表現メタ文字はエスケープする。
func (r *MongoUserRepo) Search(ctx context.Context, query string) ([]*model.User, error) {
	pattern := bson.M{"$regex": escapeRegex(query), "$options": "i"}
	filter := bson.M{"$or": []bson.M{
		{"name": pattern},
		{"email": pattern},
	}}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(SearchLimit)

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer cur.Close(ctx)

	return decodeUsers(ctx, cur)
}

// decodeUsers はカーソルの全ドキュメントをドメインモデルに変換する。
func decodeUsers(ctx context.Context, cur *mongo.Cursor) ([]*model.User, error) {
	var users []*model.User
	for cur.Next(ctx) {
		var doc mongoUserDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode user document: %w", err)
		}
		users = append(users, doc.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user documents: %w", err)
	}
	return users, nil
}

// escapeRegex は正規表現メタ文字をエスケープする。
func escapeRegex(s string) string {
	const meta = `\.+*?()|[]{}^$`
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		for j := 0; j < len(meta); j++ {
			if c == meta[j] {
				out = append(out, '\\')
				break
			}
		}
		out = append(out, c)
	}
	return string(out)
}

// compile-time interface check
var _ UserRepository = (*MongoUserRepo)(nil)
