package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings"
)

// Supported DB_DRIVER values.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints for durations and costs.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	ServiceName    string // name reported in logs and traces
	LogLevel       string // debug, info, warn or error
	DBDriver       string // mysql or sqlite
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	DBPath         string // sqlite file path
	DBAutoMigrate  bool   // create the schema on start
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time‑to‑live in minutes
	RefreshTTLDays int    // refresh token time‑to‑live in days
	BcryptCost     int    // bcrypt cost for password hashing
	OTLPEndpoint   string // OTLP/HTTP collector; empty disables tracing
	AdminEmail     string // bootstrap admin account, created on start when missing
	AdminPassword  string
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  The MySQL
// connection variables are only required when DB_DRIVER is mysql.
func Load() Config {
	c := Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		ServiceName:    envStr("SERVICE_NAME", "foodshare"),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		DBDriver:       strings.ToLower(envStr("DB_DRIVER", DriverMySQL)),
		DBAutoMigrate:  envBool("DB_AUTO_MIGRATE", false),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     mustInt("BCRYPT_COST"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AdminEmail:     os.Getenv("ADMIN_EMAIL"),
		AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		log.Fatalf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	switch c.DBDriver {
	case DriverMySQL:
		c.DBUser = must("DB_USER")
		c.DBPass = os.Getenv("DB_PASS") // empty allowed
		c.DBHost = must("DB_HOST")
		c.DBPort = must("DB_PORT")
		c.DBName = must("DB_NAME")
	case DriverSQLite:
		c.DBPath = envStr("DB_PATH", "foodshare.db")
	default:
		log.Fatalf("unsupported DB_DRIVER: %q", c.DBDriver)
	}
	return c
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
