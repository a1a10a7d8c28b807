package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tripman/internal/model"
)

// PostgresListRepo はPostgreSQLを使用した旅程リストリポジトリ。
type PostgresListRepo struct {
	db *sql.DB
}

// NewPostgresListRepo はPostgresListRepoを生成する。
func NewPostgresListRepo(db *sql.DB) *PostgresListRepo {
	return &PostgresListRepo{db: db}
}

// FindByID は指定IDのリストを所属旅程ID込みで取得する。見つからない場合はnilを返す。
func (r *PostgresListRepo) FindByID(ctx context.Context, id string) (*model.ItineraryList, error) {
	list := &model.ItineraryList{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, description, created_at, updated_at
		 FROM itinerary_lists WHERE id = $1`,
		id,
	).Scan(&list.ID, &list.UserID, &list.Name, &list.Description, &list.CreatedAt, &list.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find itinerary list: %w", err)
	}

	ids, err := r.loadItemIDs(ctx, list.ID)
	if err != nil {
		return nil, err
	}
	list.ItineraryIDs = ids

	return list, nil
}

// Create はリストを所属旅程込みで同一トランザクションで作成する。
func (r *PostgresListRepo) Create(ctx context.Context, list *model.ItineraryList) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO itinerary_lists (id, user_id, name, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		list.ID, list.UserID, list.Name, list.Description, list.CreatedAt, list.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert itinerary list: %w", err)
	}

	if err := insertListItems(ctx, tx, list.ID, list.ItineraryIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit list transaction: %w", err)
	}

	return nil
}

// Update はリストの名前・説明・所属旅程を置換更新する。
func (r *PostgresListRepo) Update(ctx context.Context, list *model.ItineraryList) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE itinerary_lists SET name = $2, description = $3, updated_at = now() WHERE id = $1`,
		list.ID, list.Name, list.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to update itinerary list: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("itinerary list not found: %s", list.ID)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM itinerary_list_items WHERE list_id = $1`,
		list.ID,
	); err != nil {
		return fmt.Errorf("failed to delete list items: %w", err)
	}

	if err := insertListItems(ctx, tx, list.ID, list.ItineraryIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit list transaction: %w", err)
	}

	return nil
}

// DeleteByID は指定IDのリストを削除する。所属レコードはCASCADE削除される。
func (r *PostgresListRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM itinerary_lists WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete itinerary list: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("itinerary list not found: %s", id)
	}
	return nil
}

// ListByUser はユーザーのリスト一覧を新着順に返す。所属旅程IDも含む。
func (r *PostgresListRepo) ListByUser(ctx context.Context, userID string) ([]*model.ItineraryList, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, description, created_at, updated_at
		 FROM itinerary_lists WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list itinerary lists: %w", err)
	}
	defer rows.Close()

	lists := []*model.ItineraryList{}
	for rows.Next() {
		list := &model.ItineraryList{}
		if err := rows.Scan(
			&list.ID, &list.UserID, &list.Name, &list.Description,
			&list.CreatedAt, &list.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan list row: %w", err)
		}
		lists = append(lists, list)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate list rows: %w", err)
	}

	for _, list := range lists {
		ids, err := r.loadItemIDs(ctx, list.ID)
		if err != nil {
			return nil, err
		}
		list.ItineraryIDs = ids
	}

	return lists, nil
}

// loadItemIDs はリストに所属する旅程IDをposition順に読み込む。
func (r *PostgresListRepo) loadItemIDs(ctx context.Context, listID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT itinerary_id FROM itinerary_list_items WHERE list_id = $1 ORDER BY position`,
		listID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load list items: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan list item: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate list items: %w", err)
	}
	return ids, nil
}

// insertListItems は所属旅程をposition付きでトランザクション内で挿入する。
func insertListItems(ctx context.Context, tx *sql.Tx, listID string, itineraryIDs []string) error {
	for i, itineraryID := range itineraryIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO itinerary_list_items (list_id, itinerary_id, position) VALUES ($1, $2, $3)`,
			listID, itineraryID, i,
		); err != nil {
			return fmt.Errorf("failed to insert list item: %w", err)
		}
	}
	return nil
}

// compile-time interface check
var _ ItineraryListRepository = (*PostgresListRepo)(nil)
