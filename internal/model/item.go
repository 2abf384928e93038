package model

// Item is the owner-scoped resource managed on the /items pages.
//
// OWNERSHIP:
// OwnerID is always set from the authenticated user, never from the request
// body. Every read and write filters on it, so one user's items are invisible
// to everyone else.
type Item struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"` // empty is stored as NULL
	OwnerID     string `json:"owner_id"`
}

// ItemUpdate carries a partial update. A nil field means "leave unchanged".
type ItemUpdate struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// Empty reports whether the update changes nothing.
func (u ItemUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil
}
