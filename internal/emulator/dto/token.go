package dto

// TokenRequest is the client-credentials grant form.
type TokenRequest struct {
	GrantType    string `form:"grant_type" validate:"required,eq=client_credentials"`
	ClientID     string `form:"client_id" validate:"required"`
	ClientSecret string `form:"client_secret" validate:"required"`
	Scope        string `form:"scope"`
}

// TokenResponse follows the OAuth2 token response shape.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type" example:"Bearer"`
	ExpiresIn   int64  `json:"expires_in" example:"3600"`
}

// OAuthError follows the OAuth2 error response shape, which differs from the
// service error envelope.
type OAuthError struct {
	Error            string `json:"error" example:"invalid_client"`
	ErrorDescription string `json:"error_description,omitempty"`
}
