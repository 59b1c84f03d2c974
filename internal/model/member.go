package model

// Team member roles.
const (
	RoleInstaller        = "installer"
	RoleSupervisor       = "supervisor"
	RoleQualityInspector = "quality_inspector"
	RoleAdmin            = "admin"
)

// CanEditQualityChecks reports whether role may record quality-check results.
func CanEditQualityChecks(role string) bool {
	switch role {
	case RoleSupervisor, RoleQualityInspector, RoleAdmin:
		return true
	}
	return false
}

// TeamMember is the account document at team/{email}.
type TeamMember struct {
	Email        string     `json:"email,omitempty"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	Phone        FlexString `json:"phone,omitempty"`
	PasswordHash string     `json:"passwordHash,omitempty"`
	PushToken    string     `json:"pushToken,omitempty"`

	// LegacyPassword is the plaintext field older provisioning scripts
	// wrote. It is read only to detect accounts that must be re-keyed.
	LegacyPassword string `json:"password,omitempty"`
}

// DisplayName falls back to the email when no name is stored.
func (m TeamMember) DisplayName() string {
	return firstNonEmpty(m.Name, m.Email, "Team member")
}

// RoleOrDefault defaults a missing role to installer.
func (m TeamMember) RoleOrDefault() string {
	return firstNonEmpty(m.Role, RoleInstaller)
}

// Customer is the document at Users/{email}. Only the fields Liftline needs
// for notifications are modelled.
type Customer struct {
	Name      string `json:"name,omitempty"`
	PushToken string `json:"pushToken,omitempty"`
}
