package domain

// Contact is a person the controller converses with.
// ID is assigned once at creation and never changes; Phone is always canonical.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}
