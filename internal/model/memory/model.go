package memory

import "time"

// Entity types recognized by the knowledge graph. Anything else is stored
// as provided; these are the ones the prompt builder groups by.
const (
	TypePerson       = "person"
	TypeOrganization = "organization"
	TypeFleet        = "fleet"
	TypeShip         = "ship"
	TypeLocation     = "location"
	TypeConcept      = "concept"
	TypeEvent        = "event"
	TypePreference   = "preference"
)

// Entity is a named concept in a user's knowledge graph. Name is unique
// (case-sensitive) within the user scope.
type Entity struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"userId" gorm:"index:idx_entities_user"`
	Name       string    `json:"name" gorm:"index:idx_entities_name"`
	EntityType string    `json:"entityType"`
	UserEdited bool      `json:"userEdited"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	Observations []Observation `json:"observations" gorm:"foreignKey:EntityID;constraint:OnDelete:CASCADE"`
}

// Observation is a single fact attached to an entity. Duplicate content
// within one entity is rejected on exact string match.
type Observation struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	EntityID   string    `json:"entityId" gorm:"index:idx_observations_entity"`
	Content    string    `json:"content"`
	IsUserEdit bool      `json:"isUserEdit" gorm:"index:idx_observations_user_edit"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Relation is a directed edge between two entities, named in active voice.
// The (from, to, type) triple is unique per user.
type Relation struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	UserID       string    `json:"userId" gorm:"index:idx_relations_user"`
	FromEntity   string    `json:"from"`
	ToEntity     string    `json:"to"`
	RelationType string    `json:"relationType"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Summary is the cached prose rendering of a user's graph, with the counts
// captured at generation time for staleness detection.
type Summary struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	UserID           string    `json:"userId" gorm:"uniqueIndex:idx_summaries_user"`
	Text             string    `json:"text"`
	GeneratedAt      time.Time `json:"generatedAt"`
	Generation       int       `json:"generation"`
	EntityCount      int       `json:"entityCount"`
	ObservationCount int       `json:"observationCount"`
}

// Turn is one message of the short-term conversation ring. Rows past
// ExpiresAt are swept by the cleanup loop.
type Turn struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"userId" gorm:"index:idx_turns_user"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"index:idx_turns_expires"`
}

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// EntityView is the read-side shape handed to tools and the prompt builder.
type EntityView struct {
	Name         string    `json:"name"`
	EntityType   string    `json:"entityType"`
	Observations []string  `json:"observations"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RelationView is the read-side shape of a graph edge.
type RelationView struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relationType"`
}

// Graph bundles entities and the relations touching them.
type Graph struct {
	Entities  []EntityView   `json:"entities"`
	Relations []RelationView `json:"relations"`
}

// SummaryView is a summary plus its computed staleness.
type SummaryView struct {
	Text             string    `json:"text"`
	GeneratedAt      time.Time `json:"generatedAt"`
	Generation       int       `json:"generation"`
	EntityCount      int       `json:"entityCount"`
	ObservationCount int       `json:"observationCount"`
	Stale            bool      `json:"stale"`
}

// UserEdit is one user-requested memory change, newest first in listings.
type UserEdit struct {
	EntityName  string    `json:"entityName"`
	Observation string    `json:"observation"`
	CreatedAt   time.Time `json:"createdAt"`
}
