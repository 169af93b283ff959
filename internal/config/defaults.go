package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kiroku/data/db/entries.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/kiroku/data/indices/bleve"
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "http://localhost:5001"
	}
	if cfg.Provider.RequestTimeout == 0 {
		cfg.Provider.RequestTimeout = 30 * time.Second
	}
	if cfg.Graph.MaxNodesForMatrix == 0 {
		cfg.Graph.MaxNodesForMatrix = 1000
	}
	if cfg.Graph.EdgeCap == 0 {
		cfg.Graph.EdgeCap = 100
	}
	// ThresholdDefault zero value is the real default: keep all computed pairs.
	if cfg.Graph.NodeLimitDefault == 0 {
		cfg.Graph.NodeLimitDefault = 500
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
