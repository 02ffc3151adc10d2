package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps users in maps. It is not safe for concurrent use;
// callers serialize access (see repomanager.MemoryStore).
type MemoryRepository struct {
	byID    map[string]*models.User
	byLogin map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: map[string]*models.User{}, byLogin: map[string]string{}}
}

// Clone returns a deep copy used as a transaction snapshot.
func (r *MemoryRepository) Clone() *MemoryRepository {
	c := NewMemoryRepository()
	for id, u := range r.byID {
		cp := *u
		c.byID[id] = &cp
	}
	for login, id := range r.byLogin {
		c.byLogin[login] = id
	}
	return c
}

func (r *MemoryRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	if _, ok := r.byLogin[user.UserName]; ok {
		return nil, common.ErrorAlreadyExists
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	cp := *user
	r.byID[user.ID] = &cp
	r.byLogin[user.UserName] = user.ID
	return user, nil
}

func (r *MemoryRepository) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	id, ok := r.byLogin[login]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *MemoryRepository) NextSeq(_ context.Context, userID string) (int64, error) {
	u, ok := r.byID[userID]
	if !ok {
		return 0, common.ErrorNotFound
	}
	u.Seq++
	return u.Seq, nil
}
