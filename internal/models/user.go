package models

import "time"

// User is the persisted identity plus its current binding to a live connection.
type User struct {
	ID           string     `bson:"_id" db:"id" json:"user_id"`
	Username     string     `bson:"username" db:"username" json:"username"`
	Connected    bool       `bson:"connected" db:"connected" json:"connected"`
	ConnectionID *string    `bson:"connection_id,omitempty" db:"connection_id" json:"-"`
	LastSeenAt   *time.Time `bson:"last_seen_at,omitempty" db:"last_seen_at" json:"last_seen_at,omitempty"`
	CreatedAt    time.Time  `bson:"created_at" db:"created_at" json:"created_at"`
}

// ActiveConnection returns the connection currently bound to the user, if any.
func (u User) ActiveConnection() (string, bool) {
	if u.ConnectionID == nil || *u.ConnectionID == "" {
		return "", false
	}
	return *u.ConnectionID, true
}

// PresenceEntry is one row of a presence-list as seen by a specific viewer.
type PresenceEntry struct {
	UserID      string     `json:"user_id"`
	Username    string     `json:"username"`
	Connected   bool       `json:"connected"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
	UnreadCount int        `json:"unread_count"`
}
