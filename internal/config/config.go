package config

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"skillup/internal/game"

	"github.com/go-playground/validator/v10"
	gomysql "github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Auth     AuthConfig     `yaml:"auth"`
	Game     GameConfig     `yaml:"game"`
}

type LogConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	File       string `yaml:"file"`
	Console    bool   `yaml:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type ServerConfig struct {
	Port        int      `yaml:"port" validate:"min=1,max=65535"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Host         string `yaml:"host" validate:"required"`
	Port         int    `yaml:"port" validate:"min=1,max=65535"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name" validate:"required"`
	MaxOpenConns int    `yaml:"max_open_conns" validate:"gte=0"`
}

// OracleConfig points at the task generation server.
type OracleConfig struct {
	BaseURL        string `yaml:"base_url" validate:"required,url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"min=1"`
	MaxRetries     int    `yaml:"max_retries" validate:"gte=0,lte=10"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type GameConfig struct {
	EasyWeight      int `yaml:"easy_weight" validate:"gte=0"`
	MediumWeight    int `yaml:"medium_weight" validate:"gte=0"`
	HardWeight      int `yaml:"hard_weight" validate:"gte=0"`
	ScoreUnit       int `yaml:"score_unit" validate:"gte=0"`
	LeaderboardSize int `yaml:"leaderboard_size" validate:"gte=0,lte=100"`
}

func Load(configFile string) *Config {
	c := &Config{
		Server:   ServerConfig{Port: 9871},
		Log:      LogConfig{Level: "info", Console: true, MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 30},
		Database: DatabaseConfig{Host: "127.0.0.1", Port: 3306, Name: "skillup", MaxOpenConns: 20},
		Oracle:   OracleConfig{BaseURL: "http://127.0.0.1:8001", TimeoutSeconds: 60, MaxRetries: 2},
		Game:     GameConfig{EasyWeight: 1, MediumWeight: 3, HardWeight: 5, ScoreUnit: 10, LeaderboardSize: 10},
	}

	paths := []string{"etc/config-dev.yaml", "/etc/skillup/config.yaml"}
	if configFile != "" {
		paths = []string{configFile}
	}
	for _, path := range paths {
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, c)
			break
		}
	}

	envOverride(&c.Database.Host, "DB_HOST")
	envOverride(&c.Database.User, "DB_USER")
	envOverride(&c.Database.Password, "DB_PASS")
	envOverride(&c.Database.Name, "DB_NAME")
	envOverride(&c.Oracle.BaseURL, "LLM_SERVER_URL")
	envOverride(&c.Oracle.Token, "LLM_SERVICE_TOKEN")
	envOverride(&c.Auth.JWTSecret, "JWT_SECRET")
	envOverride(&c.Log.Level, "LOG_LEVEL")
	envOverride(&c.Log.File, "LOG_FILE")
	envOverrideInt(&c.Server.Port, "PORT")
	envOverrideInt(&c.Database.Port, "DB_PORT")
	envOverrideInt(&c.Oracle.TimeoutSeconds, "LLM_TIMEOUT")
	envOverrideInt(&c.Oracle.MaxRetries, "LLM_MAX_RETRIES")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
	c.Log.Level = strings.ToLower(c.Log.Level)

	return c
}

// Validate checks ranges and required fields after file and env merging.
// The JWT secret is checked by the server only; cmd/reconcile runs without one.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// Rules builds the immutable scoring rules. Non-positive values fall back to defaults.
func (c *Config) Rules() game.Rules {
	g := c.Game
	return game.NewRules(g.EasyWeight, g.MediumWeight, g.HardWeight, g.ScoreUnit, g.LeaderboardSize)
}

func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.Oracle.TimeoutSeconds) * time.Second
}

func (c *Config) OpenGormDB() (*gorm.DB, error) {
	cfg := gomysql.NewConfig()
	cfg.User = c.Database.User
	cfg.Passwd = c.Database.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port)
	cfg.DBName = c.Database.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// conditional updates read RowsAffected as "matched", not "changed"
	cfg.ClientFoundRows = true

	connector, err := gomysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}
	sqlDB := sql.OpenDB(connector)
	if c.Database.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(c.Database.MaxOpenConns)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return gorm.Open(mysql.New(mysql.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
