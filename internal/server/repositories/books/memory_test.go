package books

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	a, err := r.Create(ctx, &models.Book{UserID: "u1", SHA256: "a", Size: 1})
	require.NoError(t, err)
	_, err = r.Create(ctx, &models.Book{UserID: "u1", SHA256: "a", Size: 1})
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)

	other, err := r.Create(ctx, &models.Book{UserID: "u2", SHA256: "a", Size: 1})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, other.ID)

	_, err = r.Get(ctx, "u1", other.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound, "books are scoped per user")

	list, _ := r.List(ctx, "u1")
	assert.Len(t, list, 1)

	c := r.Clone()
	require.NoError(t, c.Delete(ctx, "u1", a.ID))
	_, err = r.Get(ctx, "u1", a.ID)
	assert.NoError(t, err, "clone must not share state")

	assert.ErrorIs(t, r.Delete(ctx, "u1", 999), common.ErrorNotFound)
}
