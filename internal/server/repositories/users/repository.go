package users

import (
	"context"

	"github.com/dmitrijs2005/shelfsync/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	// NextSeq bumps and returns the user's row sequence. In a transaction
	// it also locks the user until commit.
	NextSeq(ctx context.Context, userID string) (int64, error)
}
