package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tripman/internal/model"
)

// PostgresItineraryRepo はPostgreSQLを使用した旅程リポジトリ。
// days/eventsの更新は親の旅程と同一トランザクションで置換する。
type PostgresItineraryRepo struct {
	db *sql.DB
}

// NewPostgresItineraryRepo はPostgresItineraryRepoを生成する。
func NewPostgresItineraryRepo(db *sql.DB) *PostgresItineraryRepo {
	return &PostgresItineraryRepo{db: db}
}

// FindByID は指定IDの旅程をdays/events込みで取得する。見つからない場合はnilを返す。
func (r *PostgresItineraryRepo) FindByID(ctx context.Context, id string) (*model.Itinerary, error) {
	it := &model.Itinerary{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, destination, description, start_date, end_date,
		        is_public, created_at, updated_at
		 FROM itineraries WHERE id = $1`,
		id,
	).Scan(
		&it.ID, &it.UserID, &it.Title, &it.Destination, &it.Description,
		&it.StartDate, &it.EndDate, &it.IsPublic, &it.CreatedAt, &it.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find itinerary: %w", err)
	}

	days, err := r.loadDays(ctx, it.ID)
	if err != nil {
		return nil, err
	}
	it.Days = days

	return it, nil
}

// Create は旅程をdays/events込みで同一トランザクションで作成する。
func (r *PostgresItineraryRepo) Create(ctx context.Context, itinerary *model.Itinerary) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO itineraries (id, user_id, title, destination, description,
		                          start_date, end_date, is_public, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		itinerary.ID, itinerary.UserID, itinerary.Title, itinerary.Destination,
		itinerary.Description, itinerary.StartDate, itinerary.EndDate,
		itinerary.IsPublic, itinerary.CreatedAt, itinerary.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert itinerary: %w", err)
	}

	if err := insertDays(ctx, tx, itinerary.ID, itinerary.Days); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit itinerary transaction: %w", err)
	}

	return nil
}

// Update は旅程をdays/events込みで置換更新する。
// 既存のdays/eventsを削除してから再挿入する。
func (r *PostgresItineraryRepo) Update(ctx context.Context, itinerary *model.Itinerary) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE itineraries
		 SET title = $2, destination = $3, description = $4,
		     start_date = $5, end_date = $6, is_public = $7, updated_at = now()
		 WHERE id = $1`,
		itinerary.ID, itinerary.Title, itinerary.Destination, itinerary.Description,
		itinerary.StartDate, itinerary.EndDate, itinerary.IsPublic,
	)
	if err != nil {
		return fmt.Errorf("failed to update itinerary: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("itinerary not found: %s", itinerary.ID)
	}

	// daysを削除するとeventsもCASCADEで消える
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM itinerary_days WHERE itinerary_id = $1`,
		itinerary.ID,
	); err != nil {
		return fmt.Errorf("failed to delete itinerary days: %w", err)
	}

	if err := insertDays(ctx, tx, itinerary.ID, itinerary.Days); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit itinerary transaction: %w", err)
	}

	return nil
}

// DeleteByID は指定IDの旅程を削除する。days/eventsはCASCADE削除される。
func (r *PostgresItineraryRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM itineraries WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete itinerary: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("itinerary not found: %s", id)
	}
	return nil
}

// ListByUser はユーザーの旅程サマリ一覧を新着順に返す。
// includePrivateがfalseの場合は公開旅程のみを返す。
func (r *PostgresItineraryRepo) ListByUser(ctx context.Context, userID string, includePrivate bool, limit int) ([]*model.ItinerarySummary, error) {
	query := `SELECT i.id, i.user_id, u.username, i.title, i.destination,
	                 i.start_date, i.end_date, i.created_at
	          FROM itineraries i
	          JOIN users u ON u.id = i.user_id
	          WHERE i.user_id = $1`
	if !includePrivate {
		query += ` AND i.is_public = true`
	}
	query += ` ORDER BY i.created_at DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list itineraries by user: %w", err)
	}
	defer rows.Close()

	return scanSummaries(rows)
}

// ListByFollowed は閲覧者がフォローしているユーザーの公開旅程を新着順に返す。
func (r *PostgresItineraryRepo) ListByFollowed(ctx context.Context, viewerID string, limit int) ([]*model.ItinerarySummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT i.id, i.user_id, u.username, i.title, i.destination,
		        i.start_date, i.end_date, i.created_at
		 FROM itineraries i
		 JOIN users u ON u.id = i.user_id
		 JOIN follows f ON f.followee_id = i.user_id
		 WHERE f.follower_id = $1 AND i.is_public = true
		 ORDER BY i.created_at DESC
		 LIMIT $2`,
		viewerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list followed itineraries: %w", err)
	}
	defer rows.Close()

	return scanSummaries(rows)
}

// loadDays は旅程のdaysとeventsを読み込む。
func (r *PostgresItineraryRepo) loadDays(ctx context.Context, itineraryID string) ([]model.Day, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, itinerary_id, day_number FROM itinerary_days
		 WHERE itinerary_id = $1 ORDER BY day_number`,
		itineraryID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load itinerary days: %w", err)
	}
	defer rows.Close()

	days := []model.Day{}
	dayIndex := map[string]int{}
	for rows.Next() {
		day := model.Day{}
		if err := rows.Scan(&day.ID, &day.ItineraryID, &day.DayNumber); err != nil {
			return nil, fmt.Errorf("failed to scan day row: %w", err)
		}
		dayIndex[day.ID] = len(days)
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate day rows: %w", err)
	}

	if len(days) == 0 {
		return days, nil
	}

	eventRows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.day_id, e.position, e.title, e.location, e.notes, e.link_url, e.link_title
		 FROM itinerary_events e
		 JOIN itinerary_days d ON d.id = e.day_id
		 WHERE d.itinerary_id = $1
		 ORDER BY d.day_number, e.position`,
		itineraryID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load itinerary events: %w", err)
	}
	defer eventRows.Close()

	for eventRows.Next() {
		event := model.Event{}
		if err := eventRows.Scan(
			&event.ID, &event.DayID, &event.Position, &event.Title,
			&event.Location, &event.Notes, &event.LinkURL, &event.LinkTitle,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if idx, ok := dayIndex[event.DayID]; ok {
			days[idx].Events = append(days[idx].Events, event)
		}
	}
	if err := eventRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}

	return days, nil
}

// insertDays はdaysとeventsをトランザクション内で挿入する。
func insertDays(ctx context.Context, tx *sql.Tx, itineraryID string, days []model.Day) error {
	for _, day := range days {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO itinerary_days (id, itinerary_id, day_number) VALUES ($1, $2, $3)`,
			day.ID, itineraryID, day.DayNumber,
		); err != nil {
			return fmt.Errorf("failed to insert day: %w", err)
		}

		for _, event := range day.Events {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO itinerary_events (id, day_id, position, title, location, notes, link_url, link_title)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				event.ID, day.ID, event.Position, event.Title,
				event.Location, event.Notes, event.LinkURL, event.LinkTitle,
			); err != nil {
				return fmt.Errorf("failed to insert event: %w", err)
			}
		}
	}
	return nil
}

// scanSummaries は複数行をItinerarySummaryのスライスにスキャンする。
func scanSummaries(rows *sql.Rows) ([]*model.ItinerarySummary, error) {
	summaries := []*model.ItinerarySummary{}
	for rows.Next() {
		s := &model.ItinerarySummary{}
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.Username, &s.Title, &s.Destination,
			&s.StartDate, &s.EndDate, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan itinerary summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate itinerary rows: %w", err)
	}
	return summaries, nil
}

// compile-time interface check
var _ ItineraryRepository = (*PostgresItineraryRepo)(nil)
