package memory

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	memmodel "github.com/irislabs/voice-gateway/internal/model/memory"
)

// AddTurn appends a message to the user's conversation ring with the
// configured TTL.
func (e *Engine) AddTurn(userID, role, content string) (*memmodel.Turn, error) {
	lock := e.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	turn := memmodel.Turn{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
		ExpiresAt: now.Add(e.opts.ConversationTTL),
	}
	if err := e.db.Create(&turn).Error; err != nil {
		return nil, fmt.Errorf("failed to save turn: %w", err)
	}

	return &turn, nil
}

// RecentTurns returns the last limit non-expired turns in chronological
// order.
func (e *Engine) RecentTurns(userID string, limit int) ([]memmodel.Turn, error) {
	lock := e.lockFor(userID)
	lock.RLock()
	defer lock.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	var rows []memmodel.Turn
	err := e.db.Where("user_id = ? AND expires_at > ?", userID, time.Now().UTC()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// CleanupExpired deletes turns past their TTL across all users.
func (e *Engine) CleanupExpired() (int64, error) {
	res := e.db.Where("expires_at < ?", time.Now().UTC()).Delete(&memmodel.Turn{})
	return res.RowsAffected, res.Error
}

// ClearHistory drops every turn of one user.
func (e *Engine) ClearHistory(userID string) (int64, error) {
	lock := e.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	res := e.db.Where("user_id = ?", userID).Delete(&memmodel.Turn{})
	return res.RowsAffected, res.Error
}
