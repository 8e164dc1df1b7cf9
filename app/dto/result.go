package dto

// UserCandidate is a registration request after transport-level validation.
type UserCandidate struct {
	Email    string
	Password string
	Name     string
	Surname  string
	Timezone string
	Image    *string
}

// ProfileUpdate lists the fields a user may change on their own account.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Name     *string
	Surname  *string
	Timezone *string
	Image    *string
	Password *string
}
