package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/tripman/internal/model"
)

// ユーザー作成時の一意制約違反を区別するためのセンチネルエラー。
var (
	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicateEmail    = errors.New("email already registered")
)

// userColumns はusersテーブルからmodel.Userを構成する列。
const userColumns = `id, name, username, email, avatar, followers, following, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	), "failed to find user by ID")
}

// FindByUsername は指定ユーザー名のユーザーを取得する。見つからない場合はnilを返す。
// 大文字小文字は区別しない。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`,
		username,
	), "failed to find user by username")
}

// FindCredentials はユーザー名またはメールアドレスで認証情報を検索する。
// byEmailがtrueの場合はメールアドレスで検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindCredentials(ctx context.Context, usernameOrEmail string, byEmail bool) (*model.Credentials, error) {
	column := "username"
	if byEmail {
		column = "email"
	}

	creds := &model.Credentials{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM users WHERE lower(`+column+`) = lower($1)`,
		usernameOrEmail,
	).Scan(&creds.UserID, &creds.Username, &creds.PasswordHash)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credentials: %w", err)
	}

	return creds, nil
}

// FindEmail は指定IDのユーザーのメールアドレスを取得する。
func (r *PostgresUserRepo) FindEmail(ctx context.Context, id string) (string, error) {
	var email string
	err := r.db.QueryRowContext(ctx,
		`SELECT email FROM users WHERE id = $1`,
		id,
	).Scan(&email)
	if err != nil {
		return "", fmt.Errorf("failed to find email: %w", err)
	}
	return email, nil
}

// Create はユーザーを作成する。
// ユーザー名/メールアドレスの一意制約違反はErrDuplicateUsername/ErrDuplicateEmailに変換する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, username, email, password_hash, avatar, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Name, user.Username, user.Email, passwordHash, user.Avatar,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if strings.Contains(pqErr.Constraint, "email") {
				return ErrDuplicateEmail
			}
			return ErrDuplicateUsername
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// Update はユーザーのプロフィール（name, email, avatar）を更新する。
func (r *PostgresUserRepo) Update(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = $2, email = $3, avatar = $4, updated_at = now() WHERE id = $1`,
		user.ID, user.Name, user.Email, user.Avatar,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", user.ID)
	}

	return nil
}

// UpdateAvatar はユーザーのアバターURLのみを更新する。
func (r *PostgresUserRepo) UpdateAvatar(ctx context.Context, id, avatarURL string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET avatar = $2, updated_at = now() WHERE id = $1`,
		id, avatarURL,
	)
	if err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するfollows、itinerariesはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// List はname/usernameの部分一致でユーザーを検索する。
// どちらも空の場合は新着順に返す。
func (r *PostgresUserRepo) List(ctx context.Context, name, username string, limit int) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	args := []interface{}{}

	switch {
	case name != "":
		query += ` WHERE name ILIKE $1`
		args = append(args, "%"+name+"%")
	case username != "":
		query += ` WHERE username ILIKE $1`
		args = append(args, "%"+username+"%")
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// ListSuggested は閲覧者がまだフォローしていないユーザーを
// フォロワー数の多い順に返す。閲覧者自身は含まない。
func (r *PostgresUserRepo) ListSuggested(ctx context.Context, viewerID string, limit int) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users u
		 WHERE u.id <> $1
		   AND NOT EXISTS (
		     SELECT 1 FROM follows f WHERE f.follower_id = $1 AND f.followee_id = u.id
		   )
		 ORDER BY u.followers DESC, u.created_at DESC
		 LIMIT $2`,
		viewerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggested users: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// scanOne は単一行をmodel.Userにスキャンする。
func (r *PostgresUserRepo) scanOne(row *sql.Row, errMsg string) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Name, &user.Username, &user.Email, &user.Avatar,
		&user.Followers, &user.Following, &user.CreatedAt, &user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMsg, err)
	}

	return user, nil
}

// scanUsers は複数行をmodel.Userのスライスにスキャンする。
func scanUsers(rows *sql.Rows) ([]*model.User, error) {
	users := []*model.User{}
	for rows.Next() {
		user := &model.User{}
		if err := rows.Scan(
			&user.ID, &user.Name, &user.Username, &user.Email, &user.Avatar,
			&user.Followers, &user.Following, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
