package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads the config file at path (yaml) and overlays WARROOM_* env vars.
// With an empty path only the environment and defaults are used.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	if strings.TrimSpace(path) != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) normalize() {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	if c.DBDriver == "sqlite3" {
		c.DBDriver = "sqlite"
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Incidents.DefaultType = strings.TrimSpace(c.Incidents.DefaultType)
	c.Incidents.DefaultPriority = strings.TrimSpace(c.Incidents.DefaultPriority)
	for i := range c.Incidents.Types {
		c.Incidents.Types[i].Name = strings.TrimSpace(c.Incidents.Types[i].Name)
	}
	for i := range c.Incidents.Priorities {
		c.Incidents.Priorities[i].Name = strings.TrimSpace(c.Incidents.Priorities[i].Name)
	}
}

func (c *AppConfig) Validate() error {
	switch c.DBDriver {
	case "sqlite":
		if strings.TrimSpace(c.DBPath) == "" {
			return errors.New("config: db_path is required for sqlite")
		}
	case "postgres":
		if strings.TrimSpace(c.DBURL) == "" {
			return errors.New("config: db_url is required for postgres")
		}
	default:
		return fmt.Errorf("config: unsupported db_driver %q", c.DBDriver)
	}
	if !c.Auth.Disabled {
		for i, tok := range c.Auth.Tokens {
			if strings.TrimSpace(tok.Name) == "" || strings.TrimSpace(tok.Hash) == "" {
				return fmt.Errorf("config: auth.tokens[%d] needs name and hash", i)
			}
		}
	}
	seen := map[string]struct{}{}
	for _, t := range c.Incidents.Types {
		if t.Name == "" {
			return errors.New("config: incident type without name")
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("config: duplicate incident type %q", t.Name)
		}
		seen[t.Name] = struct{}{}
	}
	return nil
}
