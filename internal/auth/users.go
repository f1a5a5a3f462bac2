package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repo reads the two account tables. Customers and admins live apart,
// mirroring the two roles; lookup precedence is the authenticator's
// business, not the repo's.
type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) findByEmail(ctx context.Context, table, role, email string) (User, bool, error) {
	u := User{Role: role}
	err := r.DB.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at FROM `+table+` WHERE email=$1`, email).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}

func (r *Repo) FindAdminByEmail(ctx context.Context, email string) (User, bool, error) {
	return r.findByEmail(ctx, "admins", RoleAdmin, email)
}

func (r *Repo) FindCustomerByEmail(ctx context.Context, email string) (User, bool, error) {
	return r.findByEmail(ctx, "customers", RoleCustomer, email)
}

// EmailTaken checks both tables so registration cannot create the
// admin/customer email collision the login precedence rule papers over.
func (r *Repo) EmailTaken(ctx context.Context, email string) (bool, error) {
	var n int
	err := r.DB.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM customers WHERE email=$1)
		     + (SELECT COUNT(*) FROM admins WHERE email=$1)`, email).Scan(&n)
	return n > 0, err
}

func (r *Repo) CreateCustomer(ctx context.Context, name, email, passwordHash string) (User, error) {
	u := User{ID: uuid.NewString(), Name: name, Email: email, Role: RoleCustomer}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO customers(id, name, email, password_hash)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at`, u.ID, u.Name, u.Email, passwordHash).Scan(&u.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// Exists reports whether a customer id resolves. Order creation uses
// this to reject orders for unknown customers.
func (r *Repo) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM customers WHERE id=$1`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repo) ListCustomers(ctx context.Context) ([]User, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, email, created_at FROM customers ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u := User{Role: RoleCustomer}
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
