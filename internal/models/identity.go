package models

const (
	RoleAdmin    = "ADM"
	RoleOperator = "OPS"
)

// Identity is the authenticated caller every core operation is scoped by.
type Identity struct {
	UserID         uint   `json:"user_id"`
	OrganizationID uint   `json:"organization_id"`
	Role           string `json:"role"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanAccess reports whether the caller may see objects of organizationID.
func (i Identity) CanAccess(organizationID uint) bool {
	return i.OrganizationID != 0 && i.OrganizationID == organizationID
}
