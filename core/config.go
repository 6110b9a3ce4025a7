package core

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all the settings the gateway runs with.
type Config struct {
	Debug    bool
	TestMode bool
	Env      string
	Build    string

	AppName          string
	SecretKey        string
	RollbarToken     string
	SessionStoreAddr string // redis address; empty -> in-memory store

	Server struct {
		Host            string
		Port            int
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	Session struct {
		CookieMaxAge         time.Duration
		TokenExpirationDelta time.Duration
		VerifyTokenSignature bool
		PollInterval         time.Duration
		PollAttempts         int
		LoginSettleDelay     time.Duration
	}

	Database struct {
		Engine        string
		Name          string
		Host          string
		Port          int
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	Redis struct {
		Password string
		DB       int
	}
}

func (c *Config) Address() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

func (c *Config) DatabaseAddress() string {
	return c.Database.Host + ":" + strconv.Itoa(c.Database.Port)
}

// NewConfig loads the app configuration from defaults, an optional
// config/.env.{env} file and environment variables; in that order of
// increasing precedence.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "XCCM")
	v.SetDefault("secretKey", "x4vq-wm8)znb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sessionStoreAddr", "")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)

	v.SetDefault("session.cookieMaxAge", 7*24*time.Hour)
	v.SetDefault("session.tokenExpirationDelta", 7*24*time.Hour)
	v.SetDefault("session.verifyTokenSignature", true)
	v.SetDefault("session.pollInterval", 500*time.Millisecond)
	v.SetDefault("session.pollAttempts", 10)
	v.SetDefault("session.loginSettleDelay", 150*time.Millisecond)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.name", "xccm")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.Set("env", env)
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := new(Config)
	if err := v.Unmarshal(conf); err != nil {
		log.Fatalf("config.Unmarshal: %v", err)
	}
	return conf
}
