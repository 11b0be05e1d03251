package database_test

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"

	"github.com/GHutch55/fastzero/api/v1/database"
	"github.com/GHutch55/fastzero/api/v1/models"
	"github.com/GHutch55/fastzero/internal/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	databaseURL string
	skipReason  string
)

func TestMain(m *testing.M) {
	url, cleanup, err := testutil.TestWithPostgres()
	if err != nil {
		skipReason = err.Error()
		os.Exit(m.Run())
	}
	databaseURL = url

	code := m.Run()
	if err := cleanup(); err != nil {
		log.Printf("failed to clean up postgres: %v", err)
	}
	os.Exit(code)
}

func newStore(t *testing.T) *database.UserStore {
	t.Helper()

	if skipReason != "" {
		t.Skipf("postgres unavailable: %s", skipReason)
	}

	ctx := context.Background()
	require.NoError(t, database.Migrate(databaseURL))

	pool, err := database.Connect(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, "TRUNCATE users RESTART IDENTITY")
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	return database.NewUserStore(pool, logger)
}

func newUser(username, email string) *database.UserWithPassword {
	return &database.UserWithPassword{
		User:     models.User{Username: username, Email: email},
		Password: "hash-" + username,
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	newStore(t)

	assert.NoError(t, database.Migrate(databaseURL))
}

func TestCreateAndGetUser(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	user := newUser("alice", "alice@example.com")
	require.NoError(t, store.CreateUser(ctx, user))
	assert.Equal(t, int64(1), user.ID)
	assert.False(t, user.CreatedAt.IsZero())

	got, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice@example.com", got.Email)

	withPassword, err := store.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash-alice", withPassword.Password)
	assert.Equal(t, user.ID, withPassword.ID)
}

func TestGetUserNotFound(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.GetUser(ctx, 42)
	assert.True(t, database.IsUserNotFoundError(err))

	_, err = store.GetUserByEmail(ctx, "nobody@example.com")
	assert.True(t, database.IsUserNotFoundError(err))
}

func TestCreateUserConflicts(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, newUser("alice", "alice@example.com")))

	err := store.CreateUser(ctx, newUser("alice", "other@example.com"))
	assert.True(t, database.IsUsernameExistsError(err))
	assert.False(t, database.IsEmailExistsError(err))

	err = store.CreateUser(ctx, newUser("other", "alice@example.com"))
	assert.False(t, database.IsUsernameExistsError(err))
	assert.True(t, database.IsEmailExistsError(err))

	err = store.CreateUser(ctx, newUser("alice", "alice@example.com"))
	assert.True(t, database.IsUsernameExistsError(err))
	assert.True(t, database.IsEmailExistsError(err))
}

func TestGetUsersOrderAndPaging(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	users, err := store.GetUsers(ctx, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NotNil(t, users)

	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, store.CreateUser(ctx, newUser(name, name+"@example.com")))
	}

	users, err = store.GetUsers(ctx, 1, 5)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[0].Username)
	assert.Equal(t, "carol", users[1].Username)
}

func TestUpdateUser(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	alice := newUser("alice", "alice@example.com")
	require.NoError(t, store.CreateUser(ctx, alice))
	require.NoError(t, store.CreateUser(ctx, newUser("bob", "bob@example.com")))

	// keeping its own username and email is not a conflict
	same := newUser("alice", "alice@example.com")
	require.NoError(t, store.UpdateUser(ctx, alice.ID, same))
	assert.True(t, same.UpdatedAt.After(alice.UpdatedAt) || same.UpdatedAt.Equal(alice.UpdatedAt))

	renamed := newUser("alicia", "alicia@example.com")
	require.NoError(t, store.UpdateUser(ctx, alice.ID, renamed))
	assert.Equal(t, alice.ID, renamed.ID)

	got, err := store.GetUserByEmail(ctx, "alicia@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alicia", got.Username)
	assert.Equal(t, "hash-alicia", got.Password)

	err = store.UpdateUser(ctx, alice.ID, newUser("bob", "alicia@example.com"))
	assert.True(t, database.IsUsernameExistsError(err))

	err = store.UpdateUser(ctx, 99, newUser("zed", "zed@example.com"))
	assert.True(t, database.IsUserNotFoundError(err))
}

func TestDeleteUser(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	alice := newUser("alice", "alice@example.com")
	require.NoError(t, store.CreateUser(ctx, alice))

	require.NoError(t, store.DeleteUser(ctx, alice.ID))

	_, err := store.GetUser(ctx, alice.ID)
	assert.True(t, database.IsUserNotFoundError(err))

	err = store.DeleteUser(ctx, alice.ID)
	assert.True(t, errors.Is(err, database.ErrUserNotFound))
}

func TestPing(t *testing.T) {
	store := newStore(t)

	assert.NoError(t, store.Ping(context.Background()))
}
