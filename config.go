package main

import (
	"flag"
	"io/ioutil"

	"gopkg.in/yaml.v3"

	"github.com/paleotronic/rt11m8/loggy"
)

// appConfig mirrors the flags a user is likely to want pinned across runs.
// Pointer fields so an absent key is distinguishable from a zero value.
type appConfig struct {
	Datastore  *string      `yaml:"datastore"`
	Verbose    *bool        `yaml:"verbose"`
	Strict     *bool        `yaml:"strict"`
	IngestMode *int         `yaml:"ingest_mode"`
	Similarity *float64     `yaml:"similarity"`
	DirFormat  *string      `yaml:"dir_format"`
	Adorned    *bool        `yaml:"adorned"`
	Workers    *int         `yaml:"workers"`
	Logs       *logSettings `yaml:"logs"`
}

type logSettings struct {
	Directory  *string `yaml:"directory"`
	MaxSizeMB  *int    `yaml:"max_size_mb"`
	MaxBackups *int    `yaml:"max_backups"`
	MaxAgeDays *int    `yaml:"max_age_days"`
	Compress   *bool   `yaml:"compress"`
}

func configPath() string {
	if *configFile != "" {
		return *configFile
	}
	return binpath() + "/config.yml"
}

func loadConfig() *appConfig {

	cfg := &appConfig{}

	data, err := ioutil.ReadFile(configPath())
	if err != nil {
		return cfg
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		loggy.Get(0).Warnf("Ignoring malformed config %s: %s", configPath(), err.Error())
		return &appConfig{}
	}

	return cfg
}

// applyConfig copies config values onto flags the user did not set on the
// command line. Call after flag.Parse.
func applyConfig(cfg *appConfig) {

	seen := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		seen[f.Name] = true
	})

	if cfg.Datastore != nil && !seen["datastore"] {
		*baseName = *cfg.Datastore
	}
	if cfg.Verbose != nil && !seen["verbose"] {
		*verbose = *cfg.Verbose
	}
	if cfg.Strict != nil && !seen["strict"] {
		*strictMode = *cfg.Strict
	}
	if cfg.IngestMode != nil && !seen["ingest-mode"] {
		*ingestMode = *cfg.IngestMode
	}
	if cfg.Similarity != nil && !seen["similarity"] {
		*similarity = *cfg.Similarity
	}
	if cfg.DirFormat != nil && !seen["dir-format"] {
		*dirFormat = *cfg.DirFormat
	}
	if cfg.Adorned != nil && !seen["adorned"] {
		*adornedCP = *cfg.Adorned
	}
	if cfg.Workers != nil && *cfg.Workers > 0 {
		loaderWorkers = *cfg.Workers
	}

	if cfg.Logs != nil {
		if cfg.Logs.Directory != nil {
			loggy.LogFolder = *cfg.Logs.Directory
		}
		if cfg.Logs.MaxSizeMB != nil {
			loggy.MaxSizeMB = *cfg.Logs.MaxSizeMB
		}
		if cfg.Logs.MaxBackups != nil {
			loggy.MaxBackups = *cfg.Logs.MaxBackups
		}
		if cfg.Logs.MaxAgeDays != nil {
			loggy.MaxAgeDays = *cfg.Logs.MaxAgeDays
		}
		if cfg.Logs.Compress != nil {
			loggy.Compress = *cfg.Logs.Compress
		}
	}

}
