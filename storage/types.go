package storage

// Config is the persisted application configuration.
type Config struct {
	Version           int                     `json:"version"`
	RetroAchievements RetroAchievementsConfig `json:"retroAchievements"`
	Network           NetworkConfig           `json:"network"`
	Host              HostConfig              `json:"host"`
}

// RetroAchievementsConfig holds the achievement service settings.
// The password is never written to disk; only the token is.
type RetroAchievementsConfig struct {
	Enabled          bool   `json:"enabled"`
	Hardcore         bool   `json:"hardcore"`
	EncoreMode       bool   `json:"encoreMode"`
	UnlockSound      bool   `json:"unlockSound"`
	ShowNotification bool   `json:"showNotification"`
	Username         string `json:"username,omitempty"`
	Token            string `json:"token,omitempty"`
	Password         string `json:"-"`
}

// NetworkConfig controls the HTTP bridge.
type NetworkConfig struct {
	TimeoutSeconds int    `json:"timeoutSeconds"`
	CABundlePath   string `json:"caBundlePath,omitempty"`
	ServerURL      string `json:"serverURL"`
	MediaURL       string `json:"mediaURL"`
}

// HostConfig controls the frontend process.
type HostConfig struct {
	WebListen string  `json:"webListen"`
	FrameRate int     `json:"frameRate"`
	Volume    float64 `json:"volume"`
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		RetroAchievements: RetroAchievementsConfig{
			Enabled:          false,
			Hardcore:         false,
			EncoreMode:       false,
			UnlockSound:      true,
			ShowNotification: true,
		},
		Network: NetworkConfig{
			TimeoutSeconds: 15,
			ServerURL:      "https://retroachievements.org",
			MediaURL:       "https://media.retroachievements.org",
		},
		Host: HostConfig{
			WebListen: "127.0.0.1:8790",
			FrameRate: 60,
			Volume:    0.5,
		},
	}
}
