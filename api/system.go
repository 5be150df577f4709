package emucore

import (
	"fmt"
	"runtime"
)

// RetroAchievements console identifier for the Nintendo DS.
const ConsoleNintendoDS = 18

// SystemInfo describes the emulated system for achievement integration.
type SystemInfo struct {
	Name        string
	ConsoleName string
	Extensions  []string
	ConsoleID   int
	CoreName    string
	CoreVersion string
}

// NintendoDS returns the system description used by the host.
func NintendoDS(coreVersion string) SystemInfo {
	return SystemInfo{
		Name:        "melonDS",
		ConsoleName: "Nintendo DS",
		Extensions:  []string{".nds", ".dsi", ".srl"},
		ConsoleID:   ConsoleNintendoDS,
		CoreName:    "melonDS-Menel-RA",
		CoreVersion: coreVersion,
	}
}

// OSName returns the platform label used in client identifiers.
func OSName() string {
	switch runtime.GOOS {
	case "windows":
		return "Windows"
	case "darwin":
		return "macOS"
	case "linux":
		return "Linux"
	default:
		return "UnknownOS"
	}
}

// ClientName returns "<core>/<version> (<OS>)".
func (s SystemInfo) ClientName() string {
	return fmt.Sprintf("%s/%s (%s)", s.CoreName, s.CoreVersion, OSName())
}
