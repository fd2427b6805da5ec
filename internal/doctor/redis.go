package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	rstrings "github.com/railsplan/railsplan/internal/util/strings"
)

// CableFile is the Action Cable configuration relative to the app root
const CableFile = "config/cable.yml"

type cableSection struct {
	Adapter string `yaml:"adapter"`
	URL     string `yaml:"url"`
}

// redisURL returns the redis the app talks to: REDIS_URL, else the redis
// adapter url in config/cable.yml for the current env
func (d *Doctor) redisURL() (string, error) {
	if v, ok := d.cfg.LookupEnv("REDIS_URL"); ok && v != "" {
		return v, nil
	}

	raw, err := os.ReadFile(filepath.Join(d.cfg.AppRoot, CableFile))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var doc map[string]cableSection
	if err := yaml.Unmarshal([]byte(rstrings.ExpandERBWith(string(raw), d.cfg.LookupEnv)), &doc); err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", CableFile, err)
	}
	section, ok := doc[d.cfg.Env]
	if !ok || section.Adapter != "redis" {
		return "", nil
	}
	return section.URL, nil
}

func (d *Doctor) checkRedis(ctx context.Context) ([]Issue, error) {
	addr, err := d.redisURL()
	if err != nil {
		return []Issue{{
			ID:       "redis_config_invalid",
			Severity: SeverityWarning,
			Message:  err.Error(),
			Fix:      fmt.Sprintf("check %s", CableFile),
		}}, nil
	}
	if addr == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(addr)
	if err != nil {
		return []Issue{{
			ID:       "redis_config_invalid",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("invalid redis url: %v", err),
			Fix:      "set REDIS_URL to redis://host:port/db",
		}}, nil
	}
	opts.DialTimeout = d.cfg.ProbeTimeout

	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return []Issue{{
			ID:       "redis_unreachable",
			Severity: SeverityError,
			Message:  fmt.Sprintf("redis at %s is unreachable: %v", opts.Addr, err),
			Fix:      "start redis or correct REDIS_URL",
		}}, nil
	}
	return nil, nil
}
