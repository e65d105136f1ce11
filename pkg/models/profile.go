package models

// Profile holds the display attributes joined into messages and
// conversations. Role distinguishes students from placement admins; it is
// informational only, authorization happens at the API-key layer.
type Profile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      string `json:"role,omitempty"`
	// Online is derived from active realtime sessions, never stored.
	Online bool `json:"online,omitempty"`
}
