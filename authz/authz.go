// Package authz holds the ownership rule that gates every mutation of posts
// and comments.
package authz

// CanMutate reports whether actorID may edit or delete a resource owned by
// ownerID. Ownership is the only axis: no roles, no admin override.
func CanMutate(actorID, ownerID int64) bool {
	return actorID != 0 && actorID == ownerID
}
