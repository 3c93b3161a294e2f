package model

// Session is the live authenticated-identity + credential pair held by the
// session gateway. The token is opaque to the client — it is attached as a
// bearer credential and never inspected.
//
// Exactly one Session is live at a time; its absence means every protected
// operation fails before touching the network.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
