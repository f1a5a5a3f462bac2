package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/woolstore/storefront/internal/apperr"
	"github.com/woolstore/storefront/internal/session"
)

// Users is the account lookup surface the authenticator needs.
type Users interface {
	FindAdminByEmail(ctx context.Context, email string) (User, bool, error)
	FindCustomerByEmail(ctx context.Context, email string) (User, bool, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	CreateCustomer(ctx context.Context, name, email, passwordHash string) (User, error)
}

type Authenticator struct {
	Users    Users
	Sessions session.Store
}

// Unknown email, wrong password and expired session all collapse into
// this one answer; callers learn nothing about which it was.
func errUnauthenticated() error {
	return apperr.New(apperr.KindUnauthenticated, "invalid credentials")
}

// Login verifies credentials and mints a session. Admins are looked up
// before customers, so an email present in both tables logs in as admin.
func (a *Authenticator) Login(ctx context.Context, email, password string) (string, session.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", session.Session{}, errUnauthenticated()
	}

	u, found, err := a.Users.FindAdminByEmail(ctx, email)
	if err != nil {
		return "", session.Session{}, err
	}
	if !found {
		u, found, err = a.Users.FindCustomerByEmail(ctx, email)
		if err != nil {
			return "", session.Session{}, err
		}
	}
	if !found {
		return "", session.Session{}, errUnauthenticated()
	}

	// bcrypt does the timing-safe comparison; the password itself is
	// never logged anywhere.
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", session.Session{}, errUnauthenticated()
	}

	token := NewToken()
	s := session.Session{
		UserID:    u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.Sessions.Put(ctx, token, s); err != nil {
		return "", session.Session{}, err
	}
	return token, s, nil
}

// Resolve maps a cookie token to its session; expired and unknown
// tokens look identical to the caller.
func (a *Authenticator) Resolve(ctx context.Context, token string) (session.Session, bool) {
	if token == "" {
		return session.Session{}, false
	}
	return a.Sessions.Get(ctx, token)
}

func (a *Authenticator) Logout(ctx context.Context, token string) {
	if token != "" {
		a.Sessions.Delete(ctx, token)
	}
}

// Register creates a customer account. The email must be free in both
// tables, keeping the admin/customer namespaces disjoint.
func (a *Authenticator) Register(ctx context.Context, name, email, password string) (User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return User{}, apperr.New(apperr.KindValidation, "name and a valid email are required")
	}
	if len(password) < 8 {
		return User{}, apperr.New(apperr.KindValidation, "password must be at least 8 characters")
	}
	taken, err := a.Users.EmailTaken(ctx, email)
	if err != nil {
		return User{}, err
	}
	if taken {
		return User{}, apperr.New(apperr.KindConflict, "email already registered")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return a.Users.CreateCustomer(ctx, name, email, string(hash))
}

// NewToken returns 32 bytes of crypto/rand entropy, hex encoded.
func NewToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err) // rand.Read does not fail on supported platforms
	}
	return hex.EncodeToString(b)
}
