package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresFollowRepo_Follow_NewEdgeUpdatesCounters(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO follows`).
		WithArgs("follower", "followee").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET following = following \+ 1`).
		WithArgs("follower").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET followers = followers \+ 1`).
		WithArgs("followee").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewPostgresFollowRepo(db)
	if err := repo.Follow(context.Background(), "follower", "followee"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresFollowRepo_Follow_ExistingEdgeSkipsCounters(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	// ON CONFLICT DO NOTHINGで0行の場合はカウンタを触らない
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO follows`).
		WithArgs("follower", "followee").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	repo := NewPostgresFollowRepo(db)
	if err := repo.Follow(context.Background(), "follower", "followee"); err != nil {
		t.Fatalf("expected no error for duplicate follow, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresFollowRepo_Unfollow_MissingEdgeSkipsCounters(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM follows`).
		WithArgs("follower", "followee").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	repo := NewPostgresFollowRepo(db)
	if err := repo.Unfollow(context.Background(), "follower", "followee"); err != nil {
		t.Fatalf("expected no error for missing edge, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresFollowRepo_Unfollow_DeletesEdgeAndDecrements(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM follows`).
		WithArgs("follower", "followee").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET following = GREATEST\(following - 1, 0\)`).
		WithArgs("follower").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET followers = GREATEST\(followers - 1, 0\)`).
		WithArgs("followee").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewPostgresFollowRepo(db)
	if err := repo.Unfollow(context.Background(), "follower", "followee"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresFollowRepo_IsFollowing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("follower", "followee").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	repo := NewPostgresFollowRepo(db)
	following, err := repo.IsFollowing(context.Background(), "follower", "followee")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !following {
		t.Error("expected following = true")
	}
}
