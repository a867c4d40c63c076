package model

// UserPublic is the display projection of a user owned by the external user
// directory. The chat core stores only user ids; usernames and avatars are
// resolved through the directory collaborator.
type UserPublic struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}
