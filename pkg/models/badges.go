package models

// Badges are the counts a client polls for its navigation badges. The two
// numbers are never summed.
type Badges struct {
	UnreadMessages int `json:"unread_messages"`
	PendingReviews int `json:"pending_reviews"`
}
