package domain

import "time"

// UserTier determines which ticket tier classes a user may purchase.
type UserTier string

const (
	TierExternal           UserTier = "EXTERNAL"
	TierStudent            UserTier = "STUDENT"
	TierScholarshipStudent UserTier = "SCHOLARSHIP_STUDENT"
	TierAdmin              UserTier = "ADMIN"
)

// ParseUserTier validates a tier string, defaulting unknown values to EXTERNAL.
func ParseUserTier(raw string) UserTier {
	switch UserTier(raw) {
	case TierStudent, TierScholarshipStudent, TierAdmin:
		return UserTier(raw)
	default:
		return TierExternal
	}
}

// User is the domain model for cafeteria members.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Tier         UserTier
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
