package repository

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/Naved20/new-dastawez/internal/database"
	"github.com/Naved20/new-dastawez/internal/model"
)

// newSQLiteTestDB はテンポラリファイル上にマイグレーション適用済みの
// SQLite接続を用意する。SQLiteバックエンドは外部サービスなしで
// 実際のSQL挙動を検証できる。
func newSQLiteTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "repo_test.db")
	db, err := database.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.RunSQLiteMigrations(db); err != nil {
		t.Fatalf("RunSQLiteMigrations() error = %v", err)
	}
	return db
}

func testStoredUser(id, name, email string) *model.User {
	now := time.Now()
	return &model.User{
		ID:        id,
		GoogleID:  "google-" + id,
		Name:      name,
		Email:     email,
		Picture:   "https://cdn.example.com/" + id + ".png",
		CreatedAt: now,
		LastLogin: now,
	}
}

// timesClose はDBラウンドトリップによる精度差を許容した時刻比較。
func timesClose(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < time.Second
}

func TestSQLiteUserRepo_Upsert_CreatesThenPreservesIdentity(t *testing.T) {
	db := newSQLiteTestDB(t)
	repo := NewSQLiteUserRepo(db)
	ctx := context.Background()

	first := testStoredUser("user-1", "Alice", "alice@example.com")
	created, err := repo.Upsert(ctx, first)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if created.ID != "user-1" {
		t.Errorf("ID = %q, want user-1", created.ID)
	}

	// 同一emailの再ログイン相当: idとcreated_atは保持され、可変フィールドだけ置き換わる
	second := testStoredUser("user-2", "Alice Renamed", "alice@example.com")
	second.LastLogin = time.Now().Add(time.Minute)
	merged, err := repo.Upsert(ctx, second)
	if err != nil {
		t.Fatalf("Upsert() second error = %v", err)
	}

	if merged.ID != "user-1" {
		t.Errorf("merged ID = %q, want user-1 (existing id preserved)", merged.ID)
	}
	if !timesClose(merged.CreatedAt, created.CreatedAt) {
		t.Errorf("merged CreatedAt = %v, want %v (preserved)", merged.CreatedAt, created.CreatedAt)
	}
	if merged.Name != "Alice Renamed" {
		t.Errorf("merged Name = %q, want Alice Renamed", merged.Name)
	}
	if !merged.LastLogin.After(created.LastLogin) {
		t.Errorf("merged LastLogin = %v, want after %v", merged.LastLogin, created.LastLogin)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1 (upsert must not duplicate)", count)
	}
}

func TestSQLiteUserRepo_FindByEmail_Absent_ReturnsNil(t *testing.T) {
	db := newSQLiteTestDB(t)
	repo := NewSQLiteUserRepo(db)

	user, err := repo.FindByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if user != nil {
		t.Errorf("FindByEmail() = %+v, want nil for absent email", user)
	}
}

func TestSQLiteUserRepo_Update_PartialFields(t *testing.T) {
	db := newSQLiteTestDB(t)
	repo := NewSQLiteUserRepo(db)
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, testStoredUser("user-1", "Alice", "alice@example.com")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	newName := "Alice Updated"
	matched, err := repo.Update(ctx, "alice@example.com", model.UserUpdate{Name: &newName})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !matched {
		t.Fatal("Update() matched = false, want true")
	}

	got, err := repo.FindByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if got.Name != "Alice Updated" {
		t.Errorf("Name = %q, want Alice Updated", got.Name)
	}
	// 未指定のフィールドは変更されない
	if got.Picture != "https://cdn.example.com/user-1.png" {
		t.Errorf("Picture = %q, want unchanged", got.Picture)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set after Update")
	}
}

func TestSQLiteUserRepo_Update_NoMatch_ReturnsFalse(t *testing.T) {
	db := newSQLiteTestDB(t)
	repo := NewSQLiteUserRepo(db)

	newName := "Ghost"
	matched, err := repo.Update(context.Background(), "ghost@example.com", model.UserUpdate{Name: &newName})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if matched {
		t.Error("Update() matched = true, want false for absent email")
	}
}

func TestSQLiteUserRepo_Delete_Idempotent(t *testing.T) {
	db := newSQLiteTestDB(t)
	repo := NewSQLiteUserRepo(db)
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, testStoredUser("user-1", "Alice", "alice@example.com")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	deleted, err := repo.Delete(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted {
		t.Error("Delete() = false, want true on first delete")
	}

	// 2回目はエラーではなく「何も消えなかった」
	deleted, err = repo.Delete(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Delete() second error = %v", err)
	}
	if deleted {
		t.Error("Delete() = true, want false on second delete")
	}

	got, err := repo.FindByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if got != nil {
		t.Error("user should be gone after Delete")
	}
}

func TestSQLiteUserRepo_Search_CaseInsensitive(t *testing.T) {
	db := newSQLiteTestDB(t)
	repo := NewSQLiteUserRepo(db)
	ctx := context.Background()

	for _, u := range []*model.User{
		testStoredUser("user-1", "Alice", "alice@example.com"),
		testStoredUser("user-2", "Bob", "bob@example.org"),
	} {
		if _, err := repo.Upsert(ctx, u); err != nil {
			t.Fatalf("Upsert(%s) error = %v", u.Email, err)
		}
	}

	results, err := repo.Search(ctx, "aLiCe")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Name != "Alice" {
		t.Errorf("Search(aLiCe) = %d results, want exactly Alice", len(results))
	}

	results, err = repo.Search(ctx, "nomatch")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search(nomatch) = %d results, want 0", len(results))
	}
}

func TestSQLiteUserRepo_Search_WildcardsAreLiteral(t *testing.T) {
	db := newSQLiteTestDB(t)
	repo := NewSQLiteUserRepo(db)
	ctx := context.Background()

	for _, u := range []*model.User{
		testStoredUser("user-1", "100% Cotton", "cotton@example.com"),
		testStoredUser("user-2", "Plain", "plain@example.com"),
	} {
		if _, err := repo.Upsert(ctx, u); err != nil {
			t.Fatalf("Upsert(%s) error = %v", u.Email, err)
		}
	}

	// "%"はワイルドカードではなくリテラルとして扱われる
	results, err := repo.Search(ctx, "%")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Name != "100% Cotton" {
		t.Errorf("Search(%%) = %d results, want only the user containing a literal %%", len(results))
	}

	// "_"も同様に1文字ワイルドカードにならない
	results, err = repo.Search(ctx, "_")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search(_) = %d results, want 0", len(results))
	}
}

func TestSQLiteUserRepo_Search_CapsResults(t *testing.T) {
	db := newSQLiteTestDB(t)
	repo := NewSQLiteUserRepo(db)
	ctx := context.Background()

	for i := 0; i < SearchLimit+5; i++ {
		u := testStoredUser(
			fmt.Sprintf("user-%d", i),
			fmt.Sprintf("Member %d", i),
			fmt.Sprintf("member%d@example.com", i),
		)
		if _, err := repo.Upsert(ctx, u); err != nil {
			t.Fatalf("Upsert(%s) error = %v", u.Email, err)
		}
	}

	results, err := repo.Search(ctx, "member")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != SearchLimit {
		t.Errorf("Search() = %d results, want cap %d", len(results), SearchLimit)
	}
}

func testStoredSession(id, email string, expiresAt time.Time) *model.Session {
	return &model.Session{
		ID:        id,
		UserEmail: email,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
		UserAgent: "repo-test/1.0",
		IPAddress: "192.0.2.10",
	}
}

func TestSQLiteSessionRepo_SaveAndFind_RoundTrip(t *testing.T) {
	db := newSQLiteTestDB(t)
	repo := NewSQLiteSessionRepo(db)
	ctx := context.Background()

	session := testStoredSession("session-1", "alice@example.com", time.Now().Add(time.Hour))
	if err := repo.Save(ctx, session); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.FindByID(ctx, "session-1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got == nil {
		t.Fatal("FindByID() = nil, want valid session")
	}
	if got.UserEmail != "alice@example.com" {
		t.Errorf("UserEmail = %q, want alice@example.com", got.UserEmail)
	}
	if got.UserAgent != "repo-test/1.0" || got.IPAddress != "192.0.2.10" {
		t.Errorf("metadata = (%q, %q), want roundtripped values", got.UserAgent, got.IPAddress)
	}
}

func TestSQLiteSessionRepo_FindByID_Expired_ReturnsNil(t *testing.T) {
	db := newSQLiteTestDB(t)
	repo := NewSQLiteSessionRepo(db)
	ctx := context.Background()

	expired := testStoredSession("session-expired", "alice@example.com", time.Now().Add(-time.Minute))
	if err := repo.Save(ctx, expired); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.FindByID(ctx, "session-expired")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got != nil {
		t.Errorf("FindByID() = %+v, want nil for expired session", got)
	}

	// 遅延失効: レコード自体は物理的に残っている
	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE session_id = ?`, "session-expired").Scan(&rows); err != nil {
		t.Fatalf("count query error = %v", err)
	}
	if rows != 1 {
		t.Errorf("physical rows = %d, want 1 (lazy expiry must not delete)", rows)
	}
}

func TestSQLiteSessionRepo_DeleteByID_Idempotent(t *testing.T) {
	db := newSQLiteTestDB(t)
	repo := NewSQLiteSessionRepo(db)
	ctx := context.Background()

	if err := repo.Save(ctx, testStoredSession("session-1", "alice@example.com", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := repo.DeleteByID(ctx, "session-1"); err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}
	if err := repo.DeleteByID(ctx, "session-1"); err != nil {
		t.Errorf("DeleteByID() second call error = %v, want nil", err)
	}

	got, err := repo.FindByID(ctx, "session-1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got != nil {
		t.Error("session should be gone after DeleteByID")
	}
}

func TestSQLiteSessionRepo_DeleteByUserEmail_OnlyTargetsUser(t *testing.T) {
	db := newSQLiteTestDB(t)
	repo := NewSQLiteSessionRepo(db)
	ctx := context.Background()

	for _, s := range []*model.Session{
		testStoredSession("session-a1", "alice@example.com", time.Now().Add(time.Hour)),
		testStoredSession("session-a2", "alice@example.com", time.Now().Add(time.Hour)),
		testStoredSession("session-b1", "bob@example.com", time.Now().Add(time.Hour)),
	} {
		if err := repo.Save(ctx, s); err != nil {
			t.Fatalf("Save(%s) error = %v", s.ID, err)
		}
	}

	if err := repo.DeleteByUserEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("DeleteByUserEmail() error = %v", err)
	}

	for _, id := range []string{"session-a1", "session-a2"} {
		got, err := repo.FindByID(ctx, id)
		if err != nil {
			t.Fatalf("FindByID(%s) error = %v", id, err)
		}
		if got != nil {
			t.Errorf("session %s should be revoked", id)
		}
	}

	got, err := repo.FindByID(ctx, "session-b1")
	if err != nil {
		t.Fatalf("FindByID(session-b1) error = %v", err)
	}
	if got == nil {
		t.Error("other user's session must survive DeleteByUserEmail")
	}
}

func TestSQLiteSessionRepo_DeleteExpired_CountsDeleted(t *testing.T) {
	db := newSQLiteTestDB(t)
	repo := NewSQLiteSessionRepo(db)
	ctx := context.Background()

	for _, s := range []*model.Session{
		testStoredSession("session-old1", "alice@example.com", time.Now().Add(-2*time.Hour)),
		testStoredSession("session-old2", "bob@example.com", time.Now().Add(-time.Minute)),
		testStoredSession("session-live", "alice@example.com", time.Now().Add(time.Hour)),
	} {
		if err := repo.Save(ctx, s); err != nil {
			t.Fatalf("Save(%s) error = %v", s.ID, err)
		}
	}

	deleted, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("DeleteExpired() = %d, want 2", deleted)
	}

	got, err := repo.FindByID(ctx, "session-live")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got == nil {
		t.Error("valid session must survive DeleteExpired")
	}
}
