package api

// Entity type path segments used by the odata API.
const (
	TypeUsers  = "users"
	TypeForums = "forums"
	TypeTeams  = "workrooms"
)

// User is an organization member. The JID addresses the user's direct
// message chat on the realtime connection.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	JID          string `json:"jid"`
	Active       bool   `json:"active"`
}

// Forum is an open chat (a "forum" in the product UI).
type Forum struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Nickname    string `json:"nickname"`
	Description string `json:"description"`
	JID         string `json:"jid"`
}

// Team is a private chat (a "workroom" in the API).
type Team struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Nickname    string `json:"nickname"`
	Description string `json:"description"`
	JID         string `json:"jid"`
}
