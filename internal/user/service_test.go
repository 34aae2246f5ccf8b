package user

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"market/internal/auth"
)

// memRepo is an in-memory user store keyed by id and email.
type memRepo struct {
	byID    map[string]*User
	byEmail map[string]*User
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]*User{}, byEmail: map[string]*User{}}
}

func (m *memRepo) Create(ctx context.Context, u *User) error {
	if _, ok := m.byEmail[u.Email]; ok {
		return ErrEmailTaken
	}
	if u.ID == "" {
		u.ID = "user-" + u.Email
	}
	cp := *u
	m.byID[u.ID] = &cp
	m.byEmail[u.Email] = &cp
	return nil
}

func (m *memRepo) GetByID(ctx context.Context, userID string) (*User, error) {
	u, ok := m.byID[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) Update(ctx context.Context, u *User) error {
	stored, ok := m.byID[u.ID]
	if !ok {
		return ErrNotFound
	}
	*stored = *u
	return nil
}

func (m *memRepo) List(ctx context.Context, search string, page, size int) ([]User, int64, error) {
	var users []User
	for _, u := range m.byID {
		if search == "" || strings.Contains(u.Email, search) || strings.Contains(u.FullName, search) {
			users = append(users, *u)
		}
	}
	return users, int64(len(users)), nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, zap.NewNop())
}

func register(t *testing.T, svc *Service, email, password string) *User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterRequest{
		Email:    email,
		Password: password,
		FullName: "Test User",
	})
	require.NoError(t, err)
	return u
}

func TestRegister(t *testing.T) {
	svc := newTestService(newMemRepo())

	u := register(t, svc, "Jo.Smith@Example.com", "correct-horse")
	require.Equal(t, "jo.smith@example.com", u.Email, "email is normalized")
	require.Equal(t, string(auth.RoleUser), u.Role)
	require.True(t, u.Active)
	require.NoError(t, bcrypt.CompareHashAndPassword(u.PasswordHash, []byte("correct-horse")))
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestService(newMemRepo())
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Email: "not-an-email", Password: "longenough", FullName: "X"})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Register(ctx, RegisterRequest{Email: "a@b.com", Password: "short", FullName: "X"})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Register(ctx, RegisterRequest{Email: "a@b.com", Password: "longenough", FullName: ""})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newTestService(newMemRepo())
	register(t, svc, "a@b.com", "correct-horse")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email: "A@B.com", Password: "correct-horse", FullName: "Other",
	})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(newMemRepo())
	register(t, svc, "a@b.com", "correct-horse")
	ctx := context.Background()

	u, err := svc.Authenticate(ctx, "A@B.com ", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, "a@b.com", u.Email)

	_, err = svc.Authenticate(ctx, "a@b.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@b.com", "correct-horse")
	require.ErrorIs(t, err, ErrInvalidCredentials, "unknown email is indistinguishable from a bad password")
}

func TestAuthenticate_InactiveAccount(t *testing.T) {
	svc := newTestService(newMemRepo())
	u := register(t, svc, "a@b.com", "correct-horse")

	_, err := svc.SetActive(context.Background(), u.ID, false)
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), "a@b.com", "correct-horse")
	require.ErrorIs(t, err, ErrInactive)
}

func TestUpdateProfile(t *testing.T) {
	svc := newTestService(newMemRepo())
	u := register(t, svc, "a@b.com", "correct-horse")
	ctx := context.Background()

	updated, err := svc.UpdateProfile(ctx, u.ID, UpdateProfileRequest{FullName: "New Name", Phone: "555-0100", Address: "2 Oak Ave"})
	require.NoError(t, err)
	require.Equal(t, "New Name", updated.FullName)
	require.Equal(t, "555-0100", updated.Phone)
	require.Equal(t, "2 Oak Ave", updated.Address)

	_, err = svc.UpdateProfile(ctx, u.ID, UpdateProfileRequest{FullName: ""})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestChangePassword(t *testing.T) {
	svc := newTestService(newMemRepo())
	u := register(t, svc, "a@b.com", "correct-horse")
	ctx := context.Background()

	err := svc.ChangePassword(ctx, u.ID, ChangePasswordRequest{OldPassword: "wrong", NewPassword: "new-password"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	err = svc.ChangePassword(ctx, u.ID, ChangePasswordRequest{OldPassword: "correct-horse", NewPassword: "tiny"})
	require.ErrorIs(t, err, ErrInvalidRequest)

	err = svc.ChangePassword(ctx, u.ID, ChangePasswordRequest{OldPassword: "correct-horse", NewPassword: "new-password"})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "a@b.com", "new-password")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "a@b.com", "correct-horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestListUsers_Pagination(t *testing.T) {
	svc := newTestService(newMemRepo())
	register(t, svc, "a@b.com", "correct-horse")
	ctx := context.Background()

	resp, err := svc.ListUsers(ctx, "", 0, 0)
	require.NoError(t, err)
	require.Equal(t, 20, resp.Size, "zero size takes the default")
	require.EqualValues(t, 1, resp.Total)

	_, err = svc.ListUsers(ctx, "", -1, 10)
	require.ErrorIs(t, err, ErrInvalidRequest)

	resp, err = svc.ListUsers(ctx, "", 0, 500)
	require.NoError(t, err)
	require.Equal(t, 100, resp.Size, "size is capped")
}
