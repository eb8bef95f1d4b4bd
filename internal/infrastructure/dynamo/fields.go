package dynamo

// DynamoDB attribute names used in key, condition and update expressions.
const (
	fieldUserID          = "user_id"
	fieldCode            = "code"
	fieldCreatedAt       = "created_at"
	fieldPartnerID       = "partner_id"
	fieldDisplayName     = "display_name"
	fieldIsEmailVerified = "is_email_verified"

	indexUserID = "user_id-index"
)
