package storage

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
)

// sectionKeys lists the keys of each nested section that carry a default
// worth restoring when absent.
var sectionKeys = map[string][]string{
	"retroAchievements": {"unlockSound", "showNotification"},
	"network":           {"timeoutSeconds", "serverURL", "mediaURL"},
	"host":              {"webListen", "frameRate", "volume"},
}

// detectPresentKeys unmarshals JSON bytes to determine which config keys
// are explicitly present in the file. Returns a flat set of dotted-path keys
// (e.g., "host.volume", "network.timeoutSeconds").
func detectPresentKeys(jsonBytes []byte) map[string]bool {
	present := make(map[string]bool)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(jsonBytes, &raw); err != nil {
		return present
	}

	if _, ok := raw["version"]; ok {
		present["version"] = true
	}

	for section, keys := range sectionKeys {
		sectionRaw, ok := raw[section]
		if !ok {
			continue
		}
		var fields map[string]json.RawMessage
		if json.Unmarshal(sectionRaw, &fields) != nil {
			continue
		}
		for _, k := range keys {
			if _, ok := fields[k]; ok {
				present[section+"."+k] = true
			}
		}
	}

	return present
}

// ApplyMissingDefaults sets default values for config fields that are absent
// from the JSON file. Intentional zero values (e.g., volume=0) are kept.
func ApplyMissingDefaults(config *Config, presentKeys map[string]bool) {
	defaults := DefaultConfig()

	if !presentKeys["version"] {
		config.Version = defaults.Version
	}
	if !presentKeys["retroAchievements.unlockSound"] {
		config.RetroAchievements.UnlockSound = defaults.RetroAchievements.UnlockSound
	}
	if !presentKeys["retroAchievements.showNotification"] {
		config.RetroAchievements.ShowNotification = defaults.RetroAchievements.ShowNotification
	}
	if !presentKeys["network.timeoutSeconds"] {
		config.Network.TimeoutSeconds = defaults.Network.TimeoutSeconds
	}
	if !presentKeys["network.serverURL"] {
		config.Network.ServerURL = defaults.Network.ServerURL
	}
	if !presentKeys["network.mediaURL"] {
		config.Network.MediaURL = defaults.Network.MediaURL
	}
	if !presentKeys["host.webListen"] {
		config.Host.WebListen = defaults.Host.WebListen
	}
	if !presentKeys["host.frameRate"] {
		config.Host.FrameRate = defaults.Host.FrameRate
	}
	if !presentKeys["host.volume"] {
		config.Host.Volume = defaults.Host.Volume
	}
}

// ValidateConfig checks all config fields against valid ranges and returns
// human-readable error descriptions. An empty slice means the config is valid.
func ValidateConfig(config *Config) []string {
	var errors []string

	if config.Version != 1 {
		errors = append(errors, fmt.Sprintf("version: %d (valid: 1)", config.Version))
	}

	if config.Network.TimeoutSeconds < 1 || config.Network.TimeoutSeconds > 300 {
		errors = append(errors, fmt.Sprintf("network.timeoutSeconds: %d (valid: 1-300)", config.Network.TimeoutSeconds))
	}

	if !validServerURL(config.Network.ServerURL) {
		errors = append(errors, fmt.Sprintf("network.serverURL: %q (valid: http or https URL)", config.Network.ServerURL))
	}

	if !validServerURL(config.Network.MediaURL) {
		errors = append(errors, fmt.Sprintf("network.mediaURL: %q (valid: http or https URL)", config.Network.MediaURL))
	}

	// empty disables the web feed
	if config.Host.WebListen != "" {
		if _, _, err := net.SplitHostPort(config.Host.WebListen); err != nil {
			errors = append(errors, fmt.Sprintf("host.webListen: %q (valid: host:port or empty)", config.Host.WebListen))
		}
	}

	if config.Host.FrameRate < 1 || config.Host.FrameRate > 240 {
		errors = append(errors, fmt.Sprintf("host.frameRate: %d (valid: 1-240)", config.Host.FrameRate))
	}

	if config.Host.Volume < 0 || config.Host.Volume > 1.0 {
		errors = append(errors, fmt.Sprintf("host.volume: %.2f (valid: 0.0-1.0)", config.Host.Volume))
	}

	if config.RetroAchievements.Token != "" && config.RetroAchievements.Username == "" {
		errors = append(errors, "retroAchievements.token: set without username")
	}

	return errors
}

// CorrectConfig resets any invalid fields to their defaults from DefaultConfig().
// Valid fields are preserved.
func CorrectConfig(config *Config) *Config {
	defaults := DefaultConfig()

	if config.Version != 1 {
		config.Version = defaults.Version
	}
	if config.Network.TimeoutSeconds < 1 || config.Network.TimeoutSeconds > 300 {
		config.Network.TimeoutSeconds = defaults.Network.TimeoutSeconds
	}
	if !validServerURL(config.Network.ServerURL) {
		config.Network.ServerURL = defaults.Network.ServerURL
	}
	if !validServerURL(config.Network.MediaURL) {
		config.Network.MediaURL = defaults.Network.MediaURL
	}
	if config.Host.WebListen != "" {
		if _, _, err := net.SplitHostPort(config.Host.WebListen); err != nil {
			config.Host.WebListen = defaults.Host.WebListen
		}
	}
	if config.Host.FrameRate < 1 || config.Host.FrameRate > 240 {
		config.Host.FrameRate = defaults.Host.FrameRate
	}
	if config.Host.Volume < 0 || config.Host.Volume > 1.0 {
		config.Host.Volume = defaults.Host.Volume
	}
	if config.RetroAchievements.Token != "" && config.RetroAchievements.Username == "" {
		config.RetroAchievements.Token = ""
	}

	return config
}

func validServerURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
