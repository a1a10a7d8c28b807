package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/hitoshi/tripman/internal/model"
)

func userRows(users ...*model.User) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "name", "username", "email", "avatar",
		"followers", "following", "created_at", "updated_at",
	})
	for _, u := range users {
		rows.AddRow(u.ID, u.Name, u.Username, u.Email, u.Avatar,
			u.Followers, u.Following, u.CreatedAt, u.UpdatedAt)
	}
	return rows
}

func TestPostgresUserRepo_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	want := &model.User{
		ID: "u1", Name: "Hanako", Username: "hanako", Email: "hanako@example.com",
		Followers: 3, Following: 5, CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(userRows(want))

	repo := NewPostgresUserRepo(db)
	got, err := repo.FindByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got == nil {
		t.Fatal("expected user, got nil")
	}
	if got.Username != "hanako" {
		t.Errorf("got username %q, want %q", got.Username, "hanako")
	}
	if got.Followers != 3 {
		t.Errorf("got followers %d, want 3", got.Followers)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresUserRepo_FindByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(userRows())

	repo := NewPostgresUserRepo(db)
	got, err := repo.FindByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("expected no error for missing user, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing user, got %+v", got)
	}
}

func TestPostgresUserRepo_Create_DuplicateUsername(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_users_username_lower"})

	repo := NewPostgresUserRepo(db)
	user := &model.User{ID: "u1", Name: "Taro", Username: "taro", Email: "taro@example.com"}
	err = repo.Create(context.Background(), user, "hash")

	if !errors.Is(err, ErrDuplicateUsername) {
		t.Errorf("got %v, want ErrDuplicateUsername", err)
	}
}

func TestPostgresUserRepo_Create_DuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_users_email_lower"})

	repo := NewPostgresUserRepo(db)
	user := &model.User{ID: "u1", Name: "Taro", Username: "taro", Email: "taro@example.com"}
	err = repo.Create(context.Background(), user, "hash")

	if !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("got %v, want ErrDuplicateEmail", err)
	}
}

func TestPostgresUserRepo_FindCredentials_ByEmail(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT id, username, password_hash FROM users WHERE lower\(email\)`).
		WithArgs("Taro@Example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash"}).
			AddRow("u1", "taro", "bcrypt-hash"))

	repo := NewPostgresUserRepo(db)
	creds, err := repo.FindCredentials(context.Background(), "Taro@Example.com", true)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if creds == nil {
		t.Fatal("expected credentials, got nil")
	}
	if creds.UserID != "u1" {
		t.Errorf("got user ID %q, want %q", creds.UserID, "u1")
	}
	if creds.PasswordHash != "bcrypt-hash" {
		t.Errorf("got hash %q, want %q", creds.PasswordHash, "bcrypt-hash")
	}
}

func TestPostgresUserRepo_FindCredentials_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT id, username, password_hash FROM users WHERE lower\(username\)`).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash"}))

	repo := NewPostgresUserRepo(db)
	creds, err := repo.FindCredentials(context.Background(), "nobody", false)
	if err != nil {
		t.Fatalf("expected no error for missing credentials, got %v", err)
	}
	if creds != nil {
		t.Errorf("expected nil for missing credentials, got %+v", creds)
	}
}

func TestPostgresUserRepo_ListSuggested_ExcludesViewer(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM users u\s+WHERE u\.id <> \$1`).
		WithArgs("viewer", 10).
		WillReturnRows(userRows(
			&model.User{ID: "u2", Name: "Jiro", Username: "jiro", Email: "jiro@example.com",
				Followers: 100, CreatedAt: now, UpdatedAt: now},
		))

	repo := NewPostgresUserRepo(db)
	users, err := repo.ListSuggested(context.Background(), "viewer", 10)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("got %d users, want 1", len(users))
	}
	if users[0].ID != "u2" {
		t.Errorf("got user %q, want %q", users[0].ID, "u2")
	}
}
