/*
Package user contains the minimal projection of a user that the messenger core holds.

Users are owned by the Identity service; this core only keeps ids and the fields needed to
render a conversation with someone it has no chat with yet.
*/
package user

// User represents the basic identity information of a chat participant.
type User struct {
	// ID is the Identity service's user id.
	ID int64 `json:"id"`

	// AccountName is the display name of the user.
	AccountName string `json:"accountName"`

	// FirstName and LastName are optional profile names.
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`

	// Avatar is a reference to the user's avatar file, if any.
	Avatar string `json:"avatar,omitempty"`
}
