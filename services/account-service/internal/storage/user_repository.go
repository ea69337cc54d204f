package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/barbersoft/backend/libs/db"
)

type User struct {
	ID           string
	CompanyID    string
	Email        string
	Name         string
	PasswordHash string
}

type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) CreateTx(ctx context.Context, tx pgx.Tx, user User) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO users (id, company_id, email, name, password_hash)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5)
	`, user.ID, user.CompanyID, user.Email, user.Name, user.PasswordHash)
	return err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		SELECT id, COALESCE(company_id::text, ''), email, name, password_hash
		FROM users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.CompanyID, &user.Email, &user.Name, &user.PasswordHash)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		SELECT id, COALESCE(company_id::text, ''), email, name, password_hash
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.CompanyID, &user.Email, &user.Name, &user.PasswordHash)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (r *UserRepository) SetCompanyTx(ctx context.Context, tx pgx.Tx, userID string, companyID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE users
		SET company_id = $2
		WHERE id = $1
	`, userID, companyID)
	return err
}

func IsNotFound(err error) bool {
	return err == pgx.ErrNoRows
}
