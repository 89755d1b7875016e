package constants

const (
	// TokenType for Bearer authentication
	TokenType = "Bearer"

	// AuthHeaderName is the name of the Authorization header
	AuthHeaderName = "Authorization"

	// AuthHeaderPrefix is the prefix for the Authorization header value
	AuthHeaderPrefix = "Bearer "

	// AudienceParam carries the FHIR base URL on SMART authorize requests
	AudienceParam = "aud"

	// SMARTConfigurationPath is resolved against the FHIR base URL
	SMARTConfigurationPath = ".well-known/smart-configuration"
)

// PKCE
const (
	CodeChallengeMethodS256 = "S256"
	CodeChallengeParam      = "code_challenge"
	CodeChallengeMethod     = "code_challenge_method"
)

// Authorization response query parameters
const (
	CodeParam             = "code"
	StateParam            = "state"
	ErrorParam            = "error"
	ErrorDescriptionParam = "error_description"
	ErrorURIParam         = "error_uri"
)

// SMART launch context fields of the token response
const (
	LaunchPatient           = "patient"
	LaunchEncounter         = "encounter"
	LaunchNeedPatientBanner = "need_patient_banner"
	IDTokenField            = "id_token"
	ScopeField              = "scope"
	ExpiresInField          = "expires_in"
)

// Token request form fields
const (
	GrantTypeParam             = "grant_type"
	GrantTypeAuthorizationCode = "authorization_code"
	RedirectURIParam           = "redirect_uri"
	ClientIDParam              = "client_id"
	CodeVerifierParam          = "code_verifier"
	FormContentType            = "application/x-www-form-urlencoded"
)

// Token response fields
const (
	AccessTokenField  = "access_token"
	TokenTypeField    = "token_type"
	RefreshTokenField = "refresh_token"
)
