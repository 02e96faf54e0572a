// internal/sink/store.go
package sink

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rfid-service/internal/model"
	"rfid-service/internal/repository"
)

// StoreSink persists each tag through the tag repository, stamping it
// with the session and device it was observed on.
type StoreSink struct {
	repo      repository.TagRepository
	deviceID  string
	sessionID uuid.UUID
}

// NewStoreSink binds a repository-backed sink to one session.
func NewStoreSink(repo repository.TagRepository, deviceID string, sessionID uuid.UUID) *StoreSink {
	return &StoreSink{
		repo:      repo,
		deviceID:  deviceID,
		sessionID: sessionID,
	}
}

// Emit writes the tag to the store.
func (s *StoreSink) Emit(ctx context.Context, tag *model.TagRecord) error {
	stored := &model.StoredTag{
		ID:        uuid.New(),
		SessionID: s.sessionID,
		DeviceID:  s.deviceID,
		TagRecord: *tag,
		CreatedAt: time.Now(),
	}
	return s.repo.Save(ctx, stored)
}

// Close is a no-op; the repository is owned by the service layer.
func (s *StoreSink) Close() error {
	return nil
}
