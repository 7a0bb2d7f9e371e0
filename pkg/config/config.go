package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	JWT          JWTConfig
	Password     PasswordConfig
	Loans        LoanConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BIBLIOTECA_APP_ENV" required:"true"`
	Port         string `envconfig:"BIBLIOTECA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BIBLIOTECA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BIBLIOTECA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BIBLIOTECA_DB_DSN"`
	Driver string `envconfig:"BIBLIOTECA_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"BIBLIOTECA_DB_HOST"`
	Port     int    `envconfig:"BIBLIOTECA_DB_PORT" default:"5432"`
	User     string `envconfig:"BIBLIOTECA_DB_USER"`
	Password string `envconfig:"BIBLIOTECA_DB_PASSWORD"`
	Name     string `envconfig:"BIBLIOTECA_DB_NAME"`
	SSLMode  string `envconfig:"BIBLIOTECA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BIBLIOTECA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BIBLIOTECA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BIBLIOTECA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BIBLIOTECA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BIBLIOTECA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BIBLIOTECA_JWT_ISSUER" default:"biblioteca"`
	ExpirationMinutes int    `envconfig:"BIBLIOTECA_JWT_EXPIRATION_MINUTES" default:"480"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"BIBLIOTECA_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"BIBLIOTECA_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"BIBLIOTECA_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"BIBLIOTECA_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"BIBLIOTECA_ARGON_KEY_LEN" default:"32"`
	MinLength        int `envconfig:"BIBLIOTECA_PASSWORD_MIN_LENGTH" default:"6"`
}

type LoanConfig struct {
	// MaxActivePerPerson caps the outstanding borrowed quantity per person.
	MaxActivePerPerson int `envconfig:"BIBLIOTECA_LOAN_MAX_ACTIVE_PER_PERSON" default:"3"`
}

type FeatureFlagsConfig struct {
	AutoMigrate      bool `envconfig:"BIBLIOTECA_AUTO_MIGRATE" default:"false"`
	SeedDefaultUsers bool `envconfig:"BIBLIOTECA_SEED_DEFAULT_USERS" default:"true"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
