package doctor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	rstrings "github.com/railsplan/railsplan/internal/util/strings"
	"github.com/railsplan/railsplan/internal/utils"
)

// DatabaseFile is the Rails database configuration relative to the app root
const DatabaseFile = "config/database.yml"

// dbSettings is one environment section of config/database.yml
type dbSettings struct {
	Adapter  string
	Database string
	Host     string
	Port     string
	Username string
	Password string
	URL      string
}

// loadDatabaseSettings reads the section for env. Rails 6+ multi-database
// sections use the "primary" entry.
func loadDatabaseSettings(path, env string, lookup func(string) (string, bool)) (*dbSettings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc map[string]map[string]any
	if err := yaml.Unmarshal([]byte(rstrings.ExpandERBWith(string(raw), lookup)), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", DatabaseFile, err)
	}

	section, ok := doc[env]
	if !ok {
		return nil, fmt.Errorf("%s has no %q environment", DatabaseFile, env)
	}
	if _, ok := section["adapter"]; !ok {
		if primary, ok := section["primary"].(map[string]any); ok {
			section = primary
		}
	}

	str := func(key string) string {
		if v, ok := section[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	}
	settings := &dbSettings{
		Adapter:  str("adapter"),
		Database: str("database"),
		Host:     str("host"),
		Port:     str("port"),
		Username: str("username"),
		Password: str("password"),
		URL:      str("url"),
	}
	if settings.URL == "" {
		if v, ok := lookup("DATABASE_URL"); ok && v != "" {
			settings.URL = v
		}
	}
	return settings, nil
}

// driver maps the settings to a database/sql driver name and DSN. An empty
// driver means the adapter is not probed.
func (s *dbSettings) driver(appRoot string) (string, string) {
	switch s.Adapter {
	case "postgresql", "postgis":
		if s.URL != "" {
			return "pgx", s.URL
		}
		host := s.Host
		if host == "" {
			host = "localhost"
		}
		port := s.Port
		if port == "" {
			port = "5432"
		}
		u := url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(host, port),
			Path:   "/" + s.Database,
		}
		if s.Username != "" {
			u.User = url.UserPassword(s.Username, s.Password)
		}
		return "pgx", u.String()

	case "sqlite3":
		path := s.Database
		if !filepath.IsAbs(path) {
			path = filepath.Join(appRoot, path)
		}
		return "sqlite3", path
	}
	return "", ""
}

func (d *Doctor) checkDatabase(ctx context.Context) ([]Issue, error) {
	path := filepath.Join(d.cfg.AppRoot, DatabaseFile)
	if !utils.FileExists(path) {
		return nil, nil
	}

	settings, err := loadDatabaseSettings(path, d.cfg.Env, d.cfg.LookupEnv)
	if err != nil {
		return []Issue{{
			ID:       "database_config_invalid",
			Severity: SeverityWarning,
			Message:  err.Error(),
			Fix:      fmt.Sprintf("check %s", DatabaseFile),
		}}, nil
	}

	driver, dsn := settings.driver(d.cfg.AppRoot)
	if driver == "" {
		d.logger.Debug("database adapter not probed", zap.String("adapter", settings.Adapter))
		return nil, nil
	}

	if driver == "sqlite3" {
		if settings.Database == ":memory:" {
			return nil, nil
		}
		if !utils.FileExists(dsn) {
			return []Issue{{
				ID:       "database_missing",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("sqlite database %s does not exist", settings.Database),
				Fix:      "run bin/rails db:prepare",
			}}, nil
		}
		dsn = "file:" + dsn + "?mode=ro"
	}

	if err := d.ping(ctx, driver, dsn); err != nil {
		return []Issue{{
			ID:       "database_unreachable",
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s database for %s is unreachable: %v", settings.Adapter, d.cfg.Env, err),
			Fix:      fmt.Sprintf("start the database server or check %s", DatabaseFile),
		}}, nil
	}
	return nil, nil
}

func (d *Doctor) ping(ctx context.Context, driver, dsn string) error {
	db, err := d.cfg.OpenDB(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("timed out after %s", d.cfg.ProbeTimeout)
		}
		return err
	}
	return nil
}
