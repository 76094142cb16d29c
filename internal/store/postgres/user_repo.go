package postgres

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
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query,
		u.Username, u.DisplayName, u.AvatarURL, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt)
}

func (r *UserRepo) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return r.scanUser(ctx,
		`SELECT id, username, display_name, avatar_url, is_active, created_at
		 FROM users WHERE id = $1`, int64(id))
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.scanUser(ctx,
		`SELECT id, username, display_name, avatar_url, is_active, created_at
		 FROM users WHERE username = $1`, username)
}

func (r *UserRepo) scanUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.IsActive, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}
