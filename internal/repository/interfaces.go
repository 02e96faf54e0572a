// internal/repository/interfaces.go
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rfid-service/internal/model"
)

// TagRepository defines tag event data access operations
type TagRepository interface {
	Save(ctx context.Context, tag *model.StoredTag) error
	RecentTags(ctx context.Context, limit int) ([]*model.StoredTag, error)
	TagsBySession(ctx context.Context, sessionID uuid.UUID) ([]*model.StoredTag, error)
	CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error)
	DeleteOldTags(ctx context.Context, olderThan time.Time) (int64, error)
}
