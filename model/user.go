// Package model defines the persistent types shared by the stores,
// the mutation handlers and the wire layer.
package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role controls mutation permissions. Identities are owned by the
// identity store; this core only ever reads them.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Valid reports whether the role is a known value.
func (r Role) Valid() bool {
	return r == RoleMember || r == RoleAdmin
}

// User is an account in the identity store.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password" json:"-"`
	Role         Role               `bson:"role" json:"role"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
}

// UserRef is the display projection of a user joined onto task reads
// and notification payloads.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// UnknownUsername is the display name for a dangling user reference.
// assignedTo and createdBy are only validated when set; the referenced
// account may be removed later, and read paths must tolerate that.
const UnknownUsername = "unknown user"

// Ref projects a user onto its display fields. A nil user yields the
// unknown-user placeholder carrying the dangling id.
func Ref(u *User, id primitive.ObjectID) UserRef {
	if u == nil {
		return UserRef{ID: id.Hex(), Username: UnknownUsername}
	}
	return UserRef{ID: u.ID.Hex(), Username: u.Username, Email: u.Email}
}
