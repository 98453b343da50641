package memory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	memmodel "github.com/irislabs/voice-gateway/internal/model/memory"
)

// GetSummary returns the cached prose summary with its staleness computed,
// or nil when no summary has been generated yet.
//
// A summary is stale once graph mutations or new turns since GeneratedAt
// exceed the configured thresholds, or as soon as any user-edited mutation
// lands after GeneratedAt. The user-edit condition holds until a new
// summary is generated.
func (e *Engine) GetSummary(userID string) (*memmodel.SummaryView, error) {
	lock := e.lockFor(userID)
	lock.RLock()
	defer lock.RUnlock()

	var row memmodel.Summary
	if err := e.db.Where("user_id = ?", userID).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}

	stale, err := e.isStale(userID, row.GeneratedAt)
	if err != nil {
		return nil, err
	}

	return &memmodel.SummaryView{
		Text:             row.Text,
		GeneratedAt:      row.GeneratedAt,
		Generation:       row.Generation,
		EntityCount:      row.EntityCount,
		ObservationCount: row.ObservationCount,
		Stale:            stale,
	}, nil
}

func (e *Engine) isStale(userID string, generatedAt time.Time) (bool, error) {
	var userEdits int64
	err := e.db.Model(&memmodel.Observation{}).
		Joins("JOIN entities ON entities.id = observations.entity_id").
		Where("entities.user_id = ? AND observations.is_user_edit = ? AND observations.created_at > ?",
			userID, true, generatedAt).
		Count(&userEdits).Error
	if err != nil {
		return false, err
	}
	if userEdits > 0 {
		return true, nil
	}

	// A user edit can touch only the entity row, with no new observation.
	var editedEntities int64
	err = e.db.Model(&memmodel.Entity{}).
		Where("user_id = ? AND user_edited = ? AND updated_at > ?", userID, true, generatedAt).
		Count(&editedEntities).Error
	if err != nil {
		return false, err
	}
	if editedEntities > 0 {
		return true, nil
	}

	var mutations int64
	err = e.db.Model(&memmodel.Observation{}).
		Joins("JOIN entities ON entities.id = observations.entity_id").
		Where("entities.user_id = ? AND observations.created_at > ?", userID, generatedAt).
		Count(&mutations).Error
	if err != nil {
		return false, err
	}

	var entityChanges int64
	err = e.db.Model(&memmodel.Entity{}).
		Where("user_id = ? AND updated_at > ?", userID, generatedAt).
		Count(&entityChanges).Error
	if err != nil {
		return false, err
	}
	if int(mutations+entityChanges) >= e.opts.StaleMutationThreshold {
		return true, nil
	}

	var turns int64
	err = e.db.Model(&memmodel.Turn{}).
		Where("user_id = ? AND created_at > ?", userID, generatedAt).
		Count(&turns).Error
	if err != nil {
		return false, err
	}
	return int(turns) >= e.opts.StaleTurnThreshold, nil
}

// SaveSummary upserts the user's prose summary and records the graph counts
// at generation time.
func (e *Engine) SaveSummary(userID, text string) error {
	if len(text) < 10 {
		return ErrSummaryTooShort
	}

	lock := e.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	return e.db.Transaction(func(tx *gorm.DB) error {
		var entityCount int64
		if err := tx.Model(&memmodel.Entity{}).Where("user_id = ?", userID).Count(&entityCount).Error; err != nil {
			return err
		}

		var obsCount int64
		if err := tx.Model(&memmodel.Observation{}).
			Joins("JOIN entities ON entities.id = observations.entity_id").
			Where("entities.user_id = ?", userID).
			Count(&obsCount).Error; err != nil {
			return err
		}

		var generation int
		var existing memmodel.Summary
		if err := tx.Where("user_id = ?", userID).First(&existing).Error; err == nil {
			generation = existing.Generation + 1
		}

		row := memmodel.Summary{
			ID:               uuid.NewString(),
			UserID:           userID,
			Text:             text,
			GeneratedAt:      time.Now().UTC(),
			Generation:       generation,
			EntityCount:      int(entityCount),
			ObservationCount: int(obsCount),
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"text", "generated_at", "generation", "entity_count", "observation_count",
			}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to save summary: %w", err)
		}
		return nil
	})
}
