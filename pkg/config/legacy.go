package config

import (
	"fmt"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// LegacyFileName is the INI credentials file older backup trees keep in
// their root. Only its [flickr] section is read.
const LegacyFileName = "flickr-downloader.config"

// IsLegacyFile reports whether path names a legacy INI config
func IsLegacyFile(path string) bool {
	return filepath.Base(path) == LegacyFileName
}

// LoadLegacy reads username, api_key and api_secret from the [flickr]
// section of the INI file at path. "usename" is accepted for username.
func LoadLegacy(path string) (FlickrConfig, error) {
	var fc FlickrConfig

	f, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		return fc, fmt.Errorf("failed to parse legacy config %s: %w", path, err)
	}
	sec, err := f.GetSection("flickr")
	if err != nil {
		return fc, fmt.Errorf("legacy config %s has no [flickr] section", path)
	}

	fc.Username = sec.Key("username").String()
	if fc.Username == "" {
		fc.Username = sec.Key("usename").String()
	}
	fc.APIKey = sec.Key("api_key").String()
	fc.APISecret = sec.Key("api_secret").String()
	return fc, nil
}

func (c *Config) loadLegacy(path string) error {
	fc, err := LoadLegacy(path)
	if err != nil {
		return err
	}
	c.Flickr.Username = fc.Username
	c.Flickr.APIKey = fc.APIKey
	c.Flickr.APISecret = fc.APISecret
	return nil
}
