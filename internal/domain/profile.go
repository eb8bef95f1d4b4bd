package domain

// UserProfile is the business record for an account, keyed by the identity
// provider's subject id. PartnerID is only written by the pairing engine.
type UserProfile struct {
	UserID           string  `json:"id" dynamodbav:"user_id"`
	Email            string  `json:"email" dynamodbav:"email"`
	DisplayName      string  `json:"display_name" dynamodbav:"display_name"`
	PhoneNumber      string  `json:"phone_number" dynamodbav:"phone_number"`
	IsEmailVerified  bool    `json:"is_email_verified" dynamodbav:"is_email_verified"`
	ProfileCreatedAt int64   `json:"profile_created_at" dynamodbav:"profile_created_at"` // epoch millis
	PartnerID        *string `json:"partner_id" dynamodbav:"partner_id,omitempty"`
}

// Linked reports whether the profile currently has a partner.
func (p *UserProfile) Linked() bool {
	return p.PartnerID != nil && *p.PartnerID != ""
}

// PartnerInfo is the subset of a partner's profile visible to the other side.
type PartnerInfo struct {
	UserID      string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

// SignUpRequest carries the fields collected by the registration form.
type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	PhoneNumber string `json:"phone_number"`
}

type SignInRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
	DeviceUUID string `json:"device_uuid" validate:"omitempty,max=128"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=64"`
}
