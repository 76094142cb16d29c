package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chatrelay/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (username, display_name, avatar_url, is_active, created_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
	`
	res, err := r.db.ExecContext(ctx, query, u.Username, u.DisplayName, u.AvatarURL, u.IsActive)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	u.ID = domain.UserID(id)
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	query := `SELECT id, username, display_name, avatar_url, is_active, created_at FROM users WHERE id = ?`
	return r.scanUser(ctx, query, id)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT id, username, display_name, avatar_url, is_active, created_at FROM users WHERE username = ?`
	return r.scanUser(ctx, query, username)
}

func (r *UserRepo) scanUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID,
		&u.Username,
		&u.DisplayName,
		&u.AvatarURL,
		&u.IsActive,
		&u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}
