package model

import "time"

// Entity types. The set is open: anything else is stored verbatim.
const (
	EntityPerson       = "person"
	EntitySystem       = "system"
	EntityConcept      = "concept"
	EntityArtifact     = "artifact"
	EntityEvent        = "event"
	EntityOrganization = "organization"
	EntityLocation     = "location"
)

// DefaultDomainName is the domain auto-created the first time a board is extracted.
const DefaultDomainName = "General"

// AuthoritativeConfidence marks user-created data.
const AuthoritativeConfidence = 1.0

type Domain struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"board_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Entity struct {
	ID             string    `json:"id"`
	DomainID       string    `json:"domain_id"`
	Name           string    `json:"name"`
	Aliases        []string  `json:"aliases"`
	EntityType     string    `json:"entity_type"`
	Description    string    `json:"description,omitempty"`
	Confidence     float64   `json:"confidence"`
	ExternalID     *string   `json:"external_id,omitempty"`
	ExternalSource *string   `json:"external_source,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Inferred reports whether the entity came from extraction rather than a user.
func (e Entity) Inferred() bool {
	return e.Confidence < AuthoritativeConfidence
}

// HasAlias reports whether alias is already known for the entity, ignoring case.
func (e Entity) HasAlias(alias string) bool {
	for _, a := range e.Aliases {
		if equalFold(a, alias) {
			return true
		}
	}
	return false
}

// Card is the slice of a kanban card the extraction pipeline reads.
type Card struct {
	ID          string    `json:"id"`
	BoardID     string    `json:"board_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ContentLength is the combined length of title and description in characters.
func (c Card) ContentLength() int {
	return len([]rune(c.Title)) + len([]rune(c.Description))
}
