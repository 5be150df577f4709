package storage

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	useMemFs(t)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if *config != *DefaultConfig() {
		t.Errorf("expected defaults, got %+v", config)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	mem := useMemFs(t)

	config := DefaultConfig()
	config.RetroAchievements.Enabled = true
	config.RetroAchievements.Hardcore = true
	config.RetroAchievements.Username = "alice"
	config.RetroAchievements.Token = "tok123"
	config.RetroAchievements.Password = "hunter2"
	config.Host.Volume = 0

	if err := SaveConfig(config); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	data, err := afero.ReadFile(mem, "/cfg/config.json")
	if err != nil {
		t.Fatalf("config.json not written: %v", err)
	}
	if strings.Contains(string(data), "hunter2") {
		t.Error("password must not be persisted")
	}
	if ok, _ := afero.Exists(mem, "/cfg/config.json.tmp"); ok {
		t.Error("temp file left behind")
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !loaded.RetroAchievements.Hardcore || loaded.RetroAchievements.Token != "tok123" {
		t.Errorf("unexpected retroAchievements section: %+v", loaded.RetroAchievements)
	}
	if loaded.RetroAchievements.Password != "" {
		t.Errorf("expected empty password, got %q", loaded.RetroAchievements.Password)
	}
	if loaded.Host.Volume != 0 {
		t.Errorf("expected saved volume 0 to survive, got %v", loaded.Host.Volume)
	}
}

func TestLoadConfigCorrupted(t *testing.T) {
	mem := useMemFs(t)
	afero.WriteFile(mem, "/cfg/config.json", []byte("{broken"), 0600)

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for corrupted config")
	}
}

func TestLoadConfigPartialFile(t *testing.T) {
	mem := useMemFs(t)
	afero.WriteFile(mem, "/cfg/config.json", []byte(`{"retroAchievements": {"enabled": true, "username": "bob"}}`), 0600)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	defaults := DefaultConfig()
	if !config.RetroAchievements.Enabled || config.RetroAchievements.Username != "bob" {
		t.Errorf("present fields lost: %+v", config.RetroAchievements)
	}
	if config.Network != defaults.Network {
		t.Errorf("expected default network, got %+v", config.Network)
	}
	if !config.RetroAchievements.UnlockSound {
		t.Error("expected unlockSound default to be applied")
	}
}

func TestCreateAndDeleteConfig(t *testing.T) {
	mem := useMemFs(t)

	if err := CreateConfigIfMissing(); err != nil {
		t.Fatalf("CreateConfigIfMissing failed: %v", err)
	}
	if ok, _ := afero.Exists(mem, "/cfg/config.json"); !ok {
		t.Fatal("expected config.json to be created")
	}

	// existing file is left alone
	afero.WriteFile(mem, "/cfg/config.json", []byte(`{"version": 1, "host": {"frameRate": 30}}`), 0600)
	if err := CreateConfigIfMissing(); err != nil {
		t.Fatalf("CreateConfigIfMissing failed: %v", err)
	}
	config, _ := LoadConfig()
	if config.Host.FrameRate != 30 {
		t.Errorf("expected frameRate 30, got %d", config.Host.FrameRate)
	}

	if err := DeleteConfig(); err != nil {
		t.Fatalf("DeleteConfig failed: %v", err)
	}
	if err := DeleteConfig(); err != nil {
		t.Errorf("second DeleteConfig should be a no-op, got %v", err)
	}
}

func TestHistoryPathUsesBaseDir(t *testing.T) {
	useMemFs(t)
	if got := GetHistoryPath(); got != "/cfg/history" {
		t.Errorf("expected /cfg/history, got %q", got)
	}
}
