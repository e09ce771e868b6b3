package domain

// Identity describes the current caller as resolved by the identity
// provider: a stable user id, a display name, and the active organization
// id when the caller works in an organization context.
type Identity struct {
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	OrganizationID string `json:"organization_id,omitempty"`
}

func (i Identity) InOrganization() bool {
	return i.OrganizationID != ""
}
