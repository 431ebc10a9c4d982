package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Owner identifies who a Job or File belongs to: exactly one of a registered
// user id or an opaque guest token. Both set or both empty is invalid.
type Owner struct {
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	GuestToken *string    `json:"guest_token,omitempty"`
}

// UserOwner returns an Owner for a registered user.
func UserOwner(id uuid.UUID) Owner {
	return Owner{UserID: &id}
}

// GuestOwner returns an Owner for a guest session token.
func GuestOwner(token string) Owner {
	return Owner{GuestToken: &token}
}

func (o Owner) IsUser() bool {
	return o.UserID != nil && o.GuestToken == nil
}

func (o Owner) IsGuest() bool {
	return o.GuestToken != nil && o.UserID == nil
}

// Validate checks the mutual-exclusion invariant.
func (o Owner) Validate() error {
	if o.UserID != nil && o.GuestToken != nil {
		return errors.New("owner has both user id and guest token")
	}
	if o.UserID == nil && o.GuestToken == nil {
		return errors.New("owner has neither user id nor guest token")
	}
	return nil
}

// Equal reports whether two Owners denote the same identity.
func (o Owner) Equal(other Owner) bool {
	if o.IsUser() && other.IsUser() {
		return *o.UserID == *other.UserID
	}
	if o.IsGuest() && other.IsGuest() {
		return *o.GuestToken == *other.GuestToken
	}
	return false
}

// String renders the owner for log fields. Guest tokens are bearer
// capabilities, so only a short prefix is ever logged.
func (o Owner) String() string {
	switch {
	case o.IsUser():
		return "user:" + o.UserID.String()
	case o.IsGuest():
		t := *o.GuestToken
		if len(t) > 12 {
			t = t[:12]
		}
		return fmt.Sprintf("guest:%s...", t)
	default:
		return "owner:invalid"
	}
}
