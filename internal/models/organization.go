package models

// Organization — организация, как её отдаёт GET /organizations/{id}.
type Organization struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count,omitempty"`
}

// AcceptInvitationRequest — тело вызова приёма приглашения.
type AcceptInvitationRequest struct {
	Token string `json:"token"`
}

// AcceptInvitationResponse — ответ приёма приглашения.
// Кроме organization_id API может вернуть и другие поля — они игнорируются.
type AcceptInvitationResponse struct {
	OrganizationID string `json:"organization_id"`
}
