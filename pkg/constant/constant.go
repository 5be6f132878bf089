package constants

// gin.Context keys
const (
	UserField     = "_alertdesk_uid"
	IdentityField = "_alertdesk_identity"
	DbField       = "_alertdesk_db"
	LangField     = "lang"
)

// Session keys used by the dashboard cookie session.
const (
	SessionUserID = "user_id"
)

const (
	EnvAppEnv = "APP_ENV"

	DefaultAPIPrefix = "/api"
	DefaultAddr      = ":8000"
	DefaultLanguage  = "es"
)
