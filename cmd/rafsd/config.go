package main

import (
	"encoding/json"
	"os"

	"github.com/KarpelesLab/rafs"
)

// DeviceConfig mirrors the backend/cache stanza of a daemon config file
// (spec section 6): which blob backend to use and how to cache it locally.
type DeviceConfig struct {
	Backend struct {
		Type   string          `json:"type"`
		Config json.RawMessage `json:"config"`
	} `json:"backend"`
	Cache struct {
		Type   string          `json:"type"`
		Config json.RawMessage `json:"config"`
	} `json:"cache"`
}

// DaemonConfig is the JSON document loaded via --config: the on-disk
// counterpart of the daemonOpts CLI flags, letting deployments pin a
// mount's backend/cache wiring outside of the command line.
type DaemonConfig struct {
	Device         DeviceConfig `json:"device"`
	Mode           string       `json:"mode"`
	DigestValidate bool         `json:"digest_validate"`
}

func loadDaemonConfig(path string) (*DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rafs.NewError(rafs.KindLoadConfig, path, err)
	}
	cfg := &DaemonConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, rafs.NewError(rafs.KindParseConfig, path, err)
	}
	return cfg, nil
}
