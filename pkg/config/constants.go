package config

// EnvPrefix is the envconfig prefix shared by every variable.
const EnvPrefix = "BIBLIOTECA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "BIBLIOTECA_APP_ENV"
	EnvPort      = "BIBLIOTECA_APP_PORT"
	EnvJWTSecret = "BIBLIOTECA_JWT_SECRET"

	EnvDBDSN  = "BIBLIOTECA_DB_DSN"
	EnvDBHost = "BIBLIOTECA_DB_HOST"
	EnvDBUser = "BIBLIOTECA_DB_USER"
	EnvDBName = "BIBLIOTECA_DB_NAME"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
