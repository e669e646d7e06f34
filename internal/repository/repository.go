package repository

import (
	"github.com/planwell/calendar-sync/pkg/database"
)

// Repositories holds all repository interfaces
type Repositories struct {
	Credential CredentialRepository
	Mapping    MappingRepository
	Planning   PlanningRepository
}

// NewRepositories creates all repositories
func NewRepositories(db *database.Postgres) *Repositories {
	return &Repositories{
		Credential: NewCredentialRepository(db),
		Mapping:    NewMappingRepository(db),
		Planning:   NewPlanningRepository(db),
	}
}
