package models

// Session identifies who is acting. It is handed to the reconciler and the
// plan service explicitly; nothing caches it globally.
type Session struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role"`
}

// Actor returns the audit value for created_by / modified_by columns.
func (s Session) Actor() *string {
	if s.UserID == "" {
		return nil
	}
	id := s.UserID
	return &id
}
