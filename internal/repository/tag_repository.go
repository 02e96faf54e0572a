// internal/repository/tag_repository.go
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rfid-service/internal/database"
	"rfid-service/internal/model"
)

// tagRepository implements TagRepository interface
type tagRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewTagRepository creates a new tag repository
func NewTagRepository(db *database.DB, logger *zap.Logger) TagRepository {
	return &tagRepository{
		db:     db,
		logger: logger,
	}
}

// Save persists one observed tag event
func (r *tagRepository) Save(ctx context.Context, tag *model.StoredTag) error {
	query := `
		INSERT INTO tag_events (
			id, session_id, device_id, epc, rssi, pc, crc, observed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		tag.ID, tag.SessionID, tag.DeviceID,
		tag.EPC, tag.RSSI, tag.PC, tag.CRC, tag.Timestamp,
	)

	if err != nil {
		r.logger.Error("Failed to save tag event", zap.Error(err), zap.String("epc", tag.EPC))
		return fmt.Errorf("failed to save tag event: %w", err)
	}

	return nil
}

// RecentTags returns the most recently observed tag events
func (r *tagRepository) RecentTags(ctx context.Context, limit int) ([]*model.StoredTag, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, session_id, device_id, epc, rssi, pc, crc, observed_at, created_at
		FROM tag_events
		ORDER BY observed_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		r.logger.Error("Failed to list recent tags", zap.Error(err))
		return nil, fmt.Errorf("failed to list recent tags: %w", err)
	}
	defer rows.Close()

	return scanTags(rows)
}

// TagsBySession returns every tag event observed during one session
func (r *tagRepository) TagsBySession(ctx context.Context, sessionID uuid.UUID) ([]*model.StoredTag, error) {
	query := `
		SELECT id, session_id, device_id, epc, rssi, pc, crc, observed_at, created_at
		FROM tag_events
		WHERE session_id = $1
		ORDER BY observed_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		r.logger.Error("Failed to list session tags", zap.Error(err), zap.String("session_id", sessionID.String()))
		return nil, fmt.Errorf("failed to list session tags: %w", err)
	}
	defer rows.Close()

	return scanTags(rows)
}

// CountBySession returns the number of tag events in one session
func (r *tagRepository) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM tag_events WHERE session_id = $1`

	var count int
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count session tags: %w", err)
	}

	return count, nil
}

// DeleteOldTags removes tag events observed before the cutoff
func (r *tagRepository) DeleteOldTags(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM tag_events WHERE observed_at < $1`

	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		r.logger.Error("Failed to delete old tag events", zap.Error(err))
		return 0, fmt.Errorf("failed to delete old tag events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if deleted > 0 {
		r.logger.Info("Old tag events deleted",
			zap.Int64("count", deleted),
			zap.Time("older_than", olderThan),
		)
	}

	return deleted, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanTags(rows rowScanner) ([]*model.StoredTag, error) {
	var tags []*model.StoredTag
	for rows.Next() {
		tag := &model.StoredTag{}
		err := rows.Scan(
			&tag.ID, &tag.SessionID, &tag.DeviceID,
			&tag.EPC, &tag.RSSI, &tag.PC, &tag.CRC,
			&tag.Timestamp, &tag.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag event: %w", err)
		}
		tags = append(tags, tag)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tag events: %w", err)
	}

	return tags, nil
}
