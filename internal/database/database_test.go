package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-while/checkweb/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := OpenDatabase(DefaultDBConfig(filepath.Join(t.TempDir(), "data", "test.sq3")), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Shutdown() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestParseMigrationFileName(t *testing.T) {
	m, err := parseMigrationFileName("0002_main_user_roles.sql")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Version)
	assert.Equal(t, "user_roles", m.Description)
	assert.Equal(t, "migrations/0002_main_user_roles.sql", m.FilePath)

	for _, bad := range []string{"0001_main.sql", "x_main_users.sql", "0001_group_users.sql", "0001_main_users.txt"} {
		_, err := parseMigrationFileName(bad)
		assert.Error(t, err, bad)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Migrate(ctx))

	applied, err := getAppliedMigrations(ctx, db.GetMainDB())
	require.NoError(t, err)
	assert.True(t, applied["0001_main_users.sql"])
	assert.True(t, applied["0002_main_user_roles.sql"])
}

func TestMigrateFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	fsys := fstest.MapFS{
		"migrations/0003_main_broken.sql": &fstest.MapFile{Data: []byte("CREATE TABLE ok_table (id INTEGER); THIS IS NOT SQL;")},
	}
	require.Error(t, db.migrateFrom(ctx, fsys))

	applied, err := getAppliedMigrations(ctx, db.GetMainDB())
	require.NoError(t, err)
	assert.False(t, applied["0003_main_broken.sql"])
}

func TestUserCRUD(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	user := &models.User{
		Username:     "testman",
		Email:        "testman@test.com",
		PasswordHash: "hash",
		DisplayName:  "Test Man",
		Roles:        []string{"Admin"},
	}
	require.NoError(t, db.InsertUser(ctx, user))
	assert.NotZero(t, user.ID)

	dup := *user
	err := db.InsertUser(ctx, &dup)
	assert.ErrorIs(t, err, ErrUserExists)

	byName, err := db.GetUserByUsername(ctx, "TESTMAN")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)
	assert.Equal(t, []string{"Admin"}, byName.Roles)
	assert.Equal(t, "hash", byName.PasswordHash)

	byEmail, err := db.GetUserByEmail(ctx, "testman@test.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	require.NoError(t, db.UpdateUserPassword(ctx, user.ID, "newhash"))
	require.NoError(t, db.UpdateUserRoles(ctx, user.ID, []string{"Editor"}, []string{"write"}))
	byID, err := db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "newhash", byID.PasswordHash)
	assert.Equal(t, []string{"Editor"}, byID.Roles)
	assert.Equal(t, []string{"write"}, byID.Permissions)

	all, err := db.GetAllUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, db.DeleteUser(ctx, user.ID))
	_, err = db.GetUserByID(ctx, user.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, db.DeleteUser(ctx, user.ID), ErrUserNotFound)
	assert.ErrorIs(t, db.UpdateUserPassword(ctx, user.ID, "x"), ErrUserNotFound)
}

func TestLoginLockout(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	user := &models.User{Username: "locky", Email: "locky@test.com", PasswordHash: "hash"}
	require.NoError(t, db.InsertUser(ctx, user))

	for i := 0; i < 3; i++ {
		locked, err := db.IsUserLockedOut(ctx, "locky", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, locked)
		require.NoError(t, db.IncrementLoginAttempts(ctx, "locky@test.com"))
	}

	locked, err := db.IsUserLockedOut(ctx, "locky", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, locked)

	// a zero lockout window expires immediately and resets the counter
	locked, err = db.IsUserLockedOut(ctx, "locky", 3, 0)
	require.NoError(t, err)
	assert.False(t, locked)
	u, err := db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, u.LoginAttempts)

	locked, err = db.IsUserLockedOut(ctx, "nobody", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, locked)
}
