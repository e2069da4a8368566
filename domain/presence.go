package domain

// OnlineUser is one entry of a presence snapshot.
type OnlineUser struct {
	UserID   UserID
	Name     string
	Sessions int
}
