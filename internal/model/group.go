package model

// Group is a named community of users that hosts events.
// It is stored in the user_group table.
type Group struct {
	ID              int64  `json:"id"              db:"id"`
	Name            string `json:"name"            db:"name"`
	Address         string `json:"address"         db:"address"`
	City            string `json:"city"            db:"city"`
	StateOrProvince string `json:"stateOrProvince" db:"state_or_province"`
	Country         string `json:"country"         db:"country"`
	PostalCode      string `json:"postalCode"      db:"postal_code"`
	ImageURL        string `json:"imageUrl"        db:"image_url"`
}

// GroupInput carries the descriptive fields a client may set on create or
// update. Membership is never part of the input.
type GroupInput struct {
	Name            string `json:"name"`
	Address         string `json:"address"`
	City            string `json:"city"`
	StateOrProvince string `json:"stateOrProvince"`
	Country         string `json:"country"`
	PostalCode      string `json:"postalCode"`
	ImageURL        string `json:"imageUrl"`
}

// Apply overwrites every descriptive field of g with the input values.
func (in GroupInput) Apply(g *Group) {
	g.Name = in.Name
	g.Address = in.Address
	g.City = in.City
	g.StateOrProvince = in.StateOrProvince
	g.Country = in.Country
	g.PostalCode = in.PostalCode
	g.ImageURL = in.ImageURL
}

// GroupSummary is a Group plus aggregate counts, used by listing endpoints.
//
// EMBEDDING AND JSON:
// encoding/json flattens the fields of an embedded struct, so a summary
// serialises as {"id":1,"name":"...","memberCount":3,...} with no nested
// "Group" object.
//
// IsMember is only set by the paginated "available groups" listing, which
// is the one place that needs to know the caller's relationship to each row.
type GroupSummary struct {
	Group
	MemberCount int64 `json:"memberCount"`
	EventCount  int64 `json:"eventCount"`
	IsMember    *bool `json:"isMember,omitempty"`
}

// GroupDetail is a Group with its events, each carrying its attendees.
type GroupDetail struct {
	Group
	Events []Event `json:"events"`
}
