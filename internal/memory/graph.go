package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	memmodel "github.com/irislabs/voice-gateway/internal/model/memory"
)

// EntityInput describes an entity to create or upsert.
type EntityInput struct {
	Name         string   `json:"name"`
	EntityType   string   `json:"entityType"`
	Observations []string `json:"observations"`
}

// CreateEntities upserts entities by name and attaches the given
// observations, deduplicating on exact content match. It returns the
// entities with the observations actually added.
func (e *Engine) CreateEntities(userID string, inputs []EntityInput, isUserEdit bool) ([]memmodel.EntityView, error) {
	lock := e.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	created := make([]memmodel.EntityView, 0, len(inputs))

	err := e.db.Transaction(func(tx *gorm.DB) error {
		for _, in := range inputs {
			if in.Name == "" {
				continue
			}
			entityType := in.EntityType
			if entityType == "" {
				entityType = memmodel.TypeConcept
			}

			now := time.Now().UTC()
			var entity memmodel.Entity
			err := tx.Where("user_id = ? AND name = ?", userID, in.Name).First(&entity).Error
			switch {
			case err == nil:
				entity.UpdatedAt = now
				if isUserEdit {
					entity.UserEdited = true
				}
				if err := tx.Save(&entity).Error; err != nil {
					return err
				}
			case err == gorm.ErrRecordNotFound:
				entity = memmodel.Entity{
					ID:         uuid.NewString(),
					UserID:     userID,
					Name:       in.Name,
					EntityType: entityType,
					UserEdited: isUserEdit,
					CreatedAt:  now,
					UpdatedAt:  now,
				}
				if err := tx.Create(&entity).Error; err != nil {
					return err
				}
			default:
				return err
			}

			added, err := appendObservations(tx, entity.ID, in.Observations, isUserEdit)
			if err != nil {
				return err
			}

			created = append(created, memmodel.EntityView{
				Name:         entity.Name,
				EntityType:   entity.EntityType,
				Observations: added,
				UpdatedAt:    entity.UpdatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create entities: %w", err)
	}

	return created, nil
}

// appendObservations inserts facts that are not already present verbatim.
func appendObservations(tx *gorm.DB, entityID string, facts []string, isUserEdit bool) ([]string, error) {
	added := make([]string, 0, len(facts))
	now := time.Now().UTC()

	for _, fact := range facts {
		if fact == "" {
			continue
		}

		var count int64
		if err := tx.Model(&memmodel.Observation{}).
			Where("entity_id = ? AND content = ?", entityID, fact).
			Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			continue
		}

		obs := memmodel.Observation{
			ID:         uuid.NewString(),
			EntityID:   entityID,
			Content:    fact,
			IsUserEdit: isUserEdit,
			CreatedAt:  now,
		}
		if err := tx.Create(&obs).Error; err != nil {
			return nil, err
		}
		added = append(added, fact)
	}

	return added, nil
}

// AddObservations appends facts to an existing entity and reports how many
// were actually added. A missing entity returns ErrEntityNotFound.
func (e *Engine) AddObservations(userID, entityName string, facts []string, isUserEdit bool) (int, error) {
	lock := e.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	var addedCount int
	err := e.db.Transaction(func(tx *gorm.DB) error {
		var entity memmodel.Entity
		if err := tx.Where("user_id = ? AND name = ?", userID, entityName).First(&entity).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrEntityNotFound
			}
			return err
		}

		added, err := appendObservations(tx, entity.ID, facts, isUserEdit)
		if err != nil {
			return err
		}
		addedCount = len(added)

		entity.UpdatedAt = time.Now().UTC()
		if isUserEdit {
			entity.UserEdited = true
		}
		return tx.Save(&entity).Error
	})
	if err != nil {
		return 0, err
	}

	return addedCount, nil
}

// DeleteObservations removes the named facts from an entity and reports the
// removed contents.
func (e *Engine) DeleteObservations(userID, entityName string, facts []string) ([]string, error) {
	lock := e.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	deleted := make([]string, 0, len(facts))
	err := e.db.Transaction(func(tx *gorm.DB) error {
		var entity memmodel.Entity
		if err := tx.Where("user_id = ? AND name = ?", userID, entityName).First(&entity).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrEntityNotFound
			}
			return err
		}

		for _, fact := range facts {
			res := tx.Where("entity_id = ? AND content = ?", entity.ID, fact).Delete(&memmodel.Observation{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				deleted = append(deleted, fact)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return deleted, nil
}

// DeleteEntities removes entities by name, cascading to their observations
// and to relations that reference them. Returns the names actually removed.
func (e *Engine) DeleteEntities(userID string, names []string) ([]string, error) {
	lock := e.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	deleted := make([]string, 0, len(names))
	err := e.db.Transaction(func(tx *gorm.DB) error {
		for _, name := range names {
			var entity memmodel.Entity
			if err := tx.Where("user_id = ? AND name = ?", userID, name).First(&entity).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					continue
				}
				return err
			}

			if err := tx.Where("entity_id = ?", entity.ID).Delete(&memmodel.Observation{}).Error; err != nil {
				return err
			}
			if err := tx.Where("user_id = ? AND (from_entity = ? OR to_entity = ?)", userID, name, name).
				Delete(&memmodel.Relation{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&entity).Error; err != nil {
				return err
			}
			deleted = append(deleted, entity.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return deleted, nil
}

// CreateRelation adds a directed edge. It is a no-op (false, nil) when
// either endpoint is missing or the triple already exists.
func (e *Engine) CreateRelation(userID, from, to, relationType string) (bool, error) {
	lock := e.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	var created bool
	err := e.db.Transaction(func(tx *gorm.DB) error {
		for _, name := range []string{from, to} {
			var count int64
			if err := tx.Model(&memmodel.Entity{}).
				Where("user_id = ? AND name = ?", userID, name).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return nil
			}
		}

		var count int64
		if err := tx.Model(&memmodel.Relation{}).
			Where("user_id = ? AND from_entity = ? AND to_entity = ? AND relation_type = ?",
				userID, from, to, relationType).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		rel := memmodel.Relation{
			ID:           uuid.NewString(),
			UserID:       userID,
			FromEntity:   from,
			ToEntity:     to,
			RelationType: relationType,
			CreatedAt:    time.Now().UTC(),
		}
		if err := tx.Create(&rel).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to create relation: %w", err)
	}

	return created, nil
}

// DeleteRelations removes matching triples and reports how many went away.
func (e *Engine) DeleteRelations(userID string, relations []memmodel.RelationView) (int, error) {
	lock := e.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	var deleted int
	err := e.db.Transaction(func(tx *gorm.DB) error {
		for _, rel := range relations {
			res := tx.Where("user_id = ? AND from_entity = ? AND to_entity = ? AND relation_type = ?",
				userID, rel.From, rel.To, rel.RelationType).
				Delete(&memmodel.Relation{})
			if res.Error != nil {
				return res.Error
			}
			deleted += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

// ReadGraph returns the user's entire graph.
func (e *Engine) ReadGraph(userID string) (*memmodel.Graph, error) {
	lock := e.lockFor(userID)
	lock.RLock()
	defer lock.RUnlock()

	entities, err := e.loadEntities(e.db.Where("user_id = ?", userID))
	if err != nil {
		return nil, err
	}

	var rels []memmodel.Relation
	if err := e.db.Where("user_id = ?", userID).Find(&rels).Error; err != nil {
		return nil, err
	}

	return &memmodel.Graph{
		Entities:  entities,
		Relations: relationViews(rels),
	}, nil
}

// OpenNodes returns the named entities plus every relation touching any of
// them.
func (e *Engine) OpenNodes(userID string, names []string) (*memmodel.Graph, error) {
	lock := e.lockFor(userID)
	lock.RLock()
	defer lock.RUnlock()

	if len(names) == 0 {
		return &memmodel.Graph{}, nil
	}

	entities, err := e.loadEntities(e.db.Where("user_id = ? AND name IN ?", userID, names))
	if err != nil {
		return nil, err
	}

	var rels []memmodel.Relation
	if err := e.db.Where("user_id = ? AND (from_entity IN ? OR to_entity IN ?)", userID, names, names).
		Find(&rels).Error; err != nil {
		return nil, err
	}

	return &memmodel.Graph{
		Entities:  entities,
		Relations: relationViews(rels),
	}, nil
}

// RecentEntities returns the n most recently updated entities.
func (e *Engine) RecentEntities(userID string, n int) ([]memmodel.EntityView, error) {
	lock := e.lockFor(userID)
	lock.RLock()
	defer lock.RUnlock()

	if n <= 0 {
		n = 10
	}
	return e.loadEntities(e.db.Where("user_id = ?", userID).Order("updated_at DESC").Limit(n))
}

// SearchNodes scores entities by substring match against name, type and
// observation text, and returns the top limit hits.
func (e *Engine) SearchNodes(userID, query string, limit int) ([]memmodel.EntityView, error) {
	lock := e.lockFor(userID)
	lock.RLock()
	defer lock.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	entities, err := e.loadEntities(e.db.Where("user_id = ?", userID))
	if err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(query)
	words := strings.Fields(queryLower)

	type scored struct {
		score  int
		entity memmodel.EntityView
	}
	hits := make([]scored, 0, len(entities))

	for _, ent := range entities {
		nameLower := strings.ToLower(ent.Name)
		typeLower := strings.ToLower(ent.EntityType)
		obsLower := strings.ToLower(strings.Join(ent.Observations, " "))

		score := 0
		if strings.Contains(nameLower, queryLower) {
			score += 10
		}
		if strings.Contains(typeLower, queryLower) {
			score += 5
		}
		if strings.Contains(obsLower, queryLower) {
			score += 8
		}
		for _, word := range words {
			if strings.Contains(nameLower, word) {
				score += 3
			}
			if strings.Contains(obsLower, word) {
				score += 2
			}
		}

		if score > 0 {
			hits = append(hits, scored{score: score, entity: ent})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]memmodel.EntityView, 0, len(hits))
	for _, h := range hits {
		results = append(results, h.entity)
	}
	return results, nil
}

// UserEdits lists user-requested memory changes, newest first.
func (e *Engine) UserEdits(userID string) ([]memmodel.UserEdit, error) {
	lock := e.lockFor(userID)
	lock.RLock()
	defer lock.RUnlock()

	type row struct {
		Name      string
		Content   string
		CreatedAt time.Time
	}
	var rows []row
	err := e.db.Model(&memmodel.Observation{}).
		Select("entities.name AS name, observations.content AS content, observations.created_at AS created_at").
		Joins("JOIN entities ON entities.id = observations.entity_id").
		Where("entities.user_id = ? AND observations.is_user_edit = ?", userID, true).
		Order("observations.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	edits := make([]memmodel.UserEdit, 0, len(rows))
	for _, r := range rows {
		edits = append(edits, memmodel.UserEdit{
			EntityName:  r.Name,
			Observation: r.Content,
			CreatedAt:   r.CreatedAt,
		})
	}
	return edits, nil
}

func (e *Engine) loadEntities(query *gorm.DB) ([]memmodel.EntityView, error) {
	var rows []memmodel.Entity
	if err := query.Preload("Observations").Find(&rows).Error; err != nil {
		return nil, err
	}

	views := make([]memmodel.EntityView, 0, len(rows))
	for _, ent := range rows {
		obs := make([]string, 0, len(ent.Observations))
		for _, o := range ent.Observations {
			obs = append(obs, o.Content)
		}
		views = append(views, memmodel.EntityView{
			Name:         ent.Name,
			EntityType:   ent.EntityType,
			Observations: obs,
			UpdatedAt:    ent.UpdatedAt,
		})
	}
	return views, nil
}

func relationViews(rels []memmodel.Relation) []memmodel.RelationView {
	views := make([]memmodel.RelationView, 0, len(rels))
	for _, r := range rels {
		views = append(views, memmodel.RelationView{
			From:         r.FromEntity,
			To:           r.ToEntity,
			RelationType: r.RelationType,
		})
	}
	return views
}
