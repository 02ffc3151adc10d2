package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.users.Register(ctx, "  ", "pw")
	assert.ErrorIs(t, err, common.ErrorBadRequest)
	_, err = f.users.Register(ctx, "alice", "")
	assert.ErrorIs(t, err, common.ErrorBadRequest)

	u, err := f.users.Register(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Len(t, u.Salt, saltSize)
	assert.NotContains(t, string(u.Verifier), "pw")

	_, err = f.users.Register(ctx, "alice", "other")
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestEnsureUser_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.users.EnsureUser(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.users.EnsureUser(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.user(t, "alice")

	now := time.Now()
	f.users.now = func() time.Time { return now }

	s, err := f.users.Login(ctx, "alice", "pw", "kindle")
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Hour), s.ExpiresAt, time.Second)

	uid, err := f.users.Authenticate(s.Token)
	require.NoError(t, err)
	assert.Equal(t, id, uid)

	_, err = f.users.Login(ctx, "alice", "wrong", "kindle")
	assert.ErrorIs(t, err, common.ErrInvalidCredential)

	_, err = f.users.Login(ctx, "nobody", "pw", "kindle")
	assert.ErrorIs(t, err, common.ErrInvalidCredential)
}

func TestAuthenticate_Rejects(t *testing.T) {
	f := newFixture(t)

	_, err := f.users.Authenticate("garbage")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	f.user(t, "alice")
	f.users.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	s, err := f.users.Login(context.Background(), "alice", "pw", "")
	require.NoError(t, err)

	_, err = f.users.Authenticate(s.Token)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}
