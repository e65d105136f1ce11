package models

// Channel is a named multi-member conversation. Channel messages reuse the
// Message shape with the channel id in place of a receiver id.
type Channel struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author"`
	Members     []string `json:"members"`
	// Created/LastActivity timestamps (ns).
	CreatedTS      int64 `json:"created_ts,omitempty"`
	LastActivityTS int64 `json:"last_activity_ts,omitempty"`

	// Unread is derived per caller on read paths, never stored.
	Unread int `json:"unread_count,omitempty"`
}

// HasMember reports whether userID belongs to the channel.
func (c Channel) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}
