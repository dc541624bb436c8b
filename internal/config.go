package internal

import (
	"fmt"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
	"github.com/webflix/webflix/internal/api"
	"github.com/webflix/webflix/internal/database"
	"github.com/webflix/webflix/internal/ingest"
	"github.com/webflix/webflix/internal/storage"
	"github.com/webflix/webflix/internal/transcoder"
)

// WebflixConfig is the struct used to contain the various user config
// supplied by file or environment.
type WebflixConfig struct {
	Services   ServiceConfig              `yaml:"docker_services"`
	Database   database.DatabaseConfig    `yaml:"database" env-required:"true"`
	Storage    storage.Config             `yaml:"storage" env-required:"true"`
	Transcoder transcoder.Config          `yaml:"transcoder" env-required:"true"`
	Submitter  transcoder.SubmitterConfig `yaml:"submitter"`
	Ingest     ingest.Config              `yaml:"ingest"`
	RestConfig api.RestConfig             `yaml:"api"`
}

// ServiceConfig is used to enable/disable the internal initialisation
// of supporting services. When enabled, Webflix will spawn its own
// Postgres container rather than expecting an external database.
type ServiceConfig struct {
	EnablePostgres bool `yaml:"enable_postgres" env:"SERVICE_ENABLE_POSTGRES" env-default:"false"`
}

// LoadFromFile loads a configuration file formatted in YAML in to a
// WebflixConfig struct, layering environment overrides on top.
func (config *WebflixConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	return nil
}

// DefaultConfigPath derives the config location used when no path is
// given on the command line.
func DefaultConfigPath() string {
	home, err := homedir.Dir()
	if err != nil {
		panic(fmt.Sprintf("FAILURE to derive user home dir: %s", err))
	}

	return filepath.Join(home, ".config", "webflix", "config.yaml")
}
