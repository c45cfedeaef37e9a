package core

import (
	"fmt"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env                       string
		Debug                     bool
		TestMode                  bool
		AppName                   string
		Build                     string
		SecretKey                 string
		WorkDir                   string
		FrontendBaseURL           string
		RollbarToken              string
		SendgridApiKey            string
		PasswordResetTimeoutDelta time.Duration

		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		Learning LearningConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		DisableRequestLogs        bool
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite3
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite3 only
	}

	LearningConfig struct {
		StepTimeout          time.Duration
		WriteRetries         int
		LeaderboardSize      int
		GuestCookieName      string
		StatsRebuildInterval time.Duration
	}
)

// NewConfig loads the configuration for the current ENV (DEV by default).
// Values come from the environment, optionally seeded from config/.env.<env>.
func NewConfig() *Config {
	conf, err := LoadConfig(os.Getenv("ENV"), ".")
	if err != nil {
		panic(err)
	}
	return conf
}

// LoadConfig loads the configuration for env, looking for dotenv files under workDir/config.
func LoadConfig(env, workDir string) (*Config, error) {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Kashur")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "n3c!x8$w0kq1+zv_hechun=ld9r2(t@p4&mjb^e7uy6a")
	v.SetDefault("workDir", workDir)
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Kashur <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.disableRequestLogs", false)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "kashur")
	v.SetDefault("database.user", "kashur")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", false)
	v.SetDefault("database.path", "kashur.db")

	v.SetDefault("learning.stepTimeout", 5*time.Second)
	v.SetDefault("learning.writeRetries", 1)
	v.SetDefault("learning.leaderboardSize", 50)
	v.SetDefault("learning.guestCookieName", "hechun_guest_progress")
	v.SetDefault("learning.statsRebuildInterval", time.Duration(0))

	env = strings.ToUpper(strings.TrimSpace(env)) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "stat %s", dotEnvPath)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:                       env,
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		AppName:                   v.GetString("appName"),
		Build:                     v.GetString("build"),
		SecretKey:                 v.GetString("secretKey"),
		WorkDir:                   v.GetString("workDir"),
		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		RollbarToken:              v.GetString("rollbarToken"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		defaultFromEmail:          v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			DisableRequestLogs:        v.GetBool("server.disableRequestLogs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			Path:          v.GetString("database.path"),
		},
		Learning: LearningConfig{
			StepTimeout:          v.GetDuration("learning.stepTimeout"),
			WriteRetries:         v.GetInt("learning.writeRetries"),
			LeaderboardSize:      v.GetInt("learning.leaderboardSize"),
			GuestCookieName:      v.GetString("learning.guestCookieName"),
			StatsRebuildInterval: v.GetDuration("learning.statsRebuildInterval"),
		},
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (conf *Config) validate() error {
	if conf.SecretKey == "" {
		return errors.New("config: secretKey is required")
	}
	switch conf.Database.Engine {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("config: unsupported database engine %q", conf.Database.Engine)
	}
	if conf.Learning.WriteRetries < 0 {
		conf.Learning.WriteRetries = 0
	}
	if _, err := mail.ParseAddress(conf.defaultFromEmail); err != nil {
		return errors.Wrap(err, "config: invalid defaultFromEmail")
	}
	return nil
}

// DefaultFromEmail returns the parsed sender address used by email services.
func (conf *Config) DefaultFromEmail() mail.Address {
	addr, _ := mail.ParseAddress(conf.defaultFromEmail) // validated on load
	if addr == nil {
		return mail.Address{}
	}
	return *addr
}

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// NewTestConfig returns the configuration used by package tests: sqlite in-memory DB,
// fixed secret key, debug off so that error payloads are stable.
func NewTestConfig() *Config {
	return &Config{
		Env:                       "TEST",
		TestMode:                  true,
		AppName:                   "Kashur",
		Build:                     "test",
		SecretKey:                 "test-secret",
		WorkDir:                   ".",
		FrontendBaseURL:           "http://localhost:3000",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		defaultFromEmail:          "Kashur <noreply@localhost>",
		Server: ServerConfig{
			Address:                   ":0",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			DisableRequestLogs:        true,
		},
		Database: DatabaseConfig{Engine: "sqlite3", Path: ":memory:"},
		Learning: LearningConfig{
			StepTimeout:     time.Second,
			WriteRetries:    1,
			LeaderboardSize: 50,
			GuestCookieName: "hechun_guest_progress",
		},
	}
}
