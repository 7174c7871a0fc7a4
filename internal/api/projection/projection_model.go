package projection

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/gopinions/auth-service/internal/api/auth"
)

// ProjectedUser is the read-optimized mirror of an identity consumed by
// the content features. It is keyed by the authoritative record's id
// (source_id), never by its own surrogate id, and is owned by the
// synchronizer: it is a derived artifact, never the source of truth.
type ProjectedUser struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"-"`
	SourceID  string        `bson:"source_id" json:"source_id"`
	Name      string        `bson:"name" json:"name"`
	Surname   string        `bson:"surname" json:"surname"`
	Username  string        `bson:"username" json:"username"`
	Email     string        `bson:"email" json:"email"`
	Active    bool          `bson:"is_active" json:"is_active"`
	CreatedAt time.Time     `bson:"created_at" json:"-"`
	UpdatedAt time.Time     `bson:"updated_at" json:"-"`
}

// Result aggregates the outcome of one reconciliation pass.
type Result struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Total     int `json:"total"`
}

func projectionFrom(ident *auth.Identity) ProjectedUser {
	return ProjectedUser{
		SourceID: ident.ID.String(),
		Name:     ident.Name,
		Surname:  ident.Surname,
		Username: ident.Username,
		Email:    ident.Email,
		Active:   ident.Active,
	}
}

// differs compares every mirrored field, the same set the full-scan pass
// replicates.
func differs(existing *ProjectedUser, want ProjectedUser) bool {
	return existing.Name != want.Name ||
		existing.Surname != want.Surname ||
		existing.Username != want.Username ||
		existing.Email != want.Email ||
		existing.Active != want.Active
}
