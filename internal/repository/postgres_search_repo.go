package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tripman/internal/model"
)

// PostgresSearchRepo はPostgreSQLのILIKEを使用した横断検索リポジトリ。
type PostgresSearchRepo struct {
	db *sql.DB
}

// NewPostgresSearchRepo はPostgresSearchRepoを生成する。
func NewPostgresSearchRepo(db *sql.DB) *PostgresSearchRepo {
	return &PostgresSearchRepo{db: db}
}

// SearchUsers はname/usernameの部分一致でユーザーを検索する。
func (r *PostgresSearchRepo) SearchUsers(ctx context.Context, query string, limit int) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE name ILIKE $1 OR username ILIKE $1
		 ORDER BY followers DESC, created_at DESC
		 LIMIT $2`,
		"%"+query+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// SearchItineraries はtitle/destinationの部分一致で公開旅程を検索する。
func (r *PostgresSearchRepo) SearchItineraries(ctx context.Context, query string, limit int) ([]*model.ItinerarySummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT i.id, i.user_id, u.username, i.title, i.destination,
		        i.start_date, i.end_date, i.created_at
		 FROM itineraries i
		 JOIN users u ON u.id = i.user_id
		 WHERE i.is_public = true AND (i.title ILIKE $1 OR i.destination ILIKE $1)
		 ORDER BY i.created_at DESC
		 LIMIT $2`,
		"%"+query+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search itineraries: %w", err)
	}
	defer rows.Close()

	return scanSummaries(rows)
}

// compile-time interface check
var _ SearchRepository = (*PostgresSearchRepo)(nil)
