package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/devtype/
//   - Linux:   ~/.local/share/devtype/
//   - Windows: %APPDATA%\devtype\
//
// Falls back to ~/.devtype if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir()
	case "linux":
		return linuxDataDir()
	case "windows":
		return windowsDataDir()
	default:
		return fallbackDataDir()
	}
}

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/devtype/
//   - Linux:   ~/.config/devtype/
//   - Windows: %APPDATA%\devtype\
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir() // macOS uses same dir for config and data
	case "linux":
		return linuxConfigDir()
	case "windows":
		return windowsDataDir() // Windows uses same dir for config and data
	default:
		return fallbackDataDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
//
// Platform paths:
//   - macOS:   ~/Library/Logs/devtype/
//   - Linux:   ~/.local/share/devtype/logs/
//   - Windows: %LOCALAPPDATA%\devtype\logs\
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSLogDir()
	case "linux":
		return filepath.Join(linuxDataDir(), "logs")
	case "windows":
		return windowsLogDir()
	default:
		return filepath.Join(fallbackDataDir(), "logs")
	}
}

// macOS-specific paths

func macOSDataDir() string {
	return filepath.Join(homeDir(), "Library", "Application Support", "devtype")
}

func macOSLogDir() string {
	return filepath.Join(homeDir(), "Library", "Logs", "devtype")
}

// Linux-specific paths following XDG Base Directory Specification

func linuxDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "devtype")
	}
	return filepath.Join(homeDir(), ".local", "share", "devtype")
}

func linuxConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "devtype")
	}
	return filepath.Join(homeDir(), ".config", "devtype")
}

// Windows-specific paths

func windowsDataDir() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "devtype")
	}
	return filepath.Join(homeDir(), "AppData", "Roaming", "devtype")
}

func windowsLogDir() string {
	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		return filepath.Join(localAppData, "devtype", "logs")
	}
	return filepath.Join(homeDir(), "AppData", "Local", "devtype", "logs")
}

func fallbackDataDir() string {
	return filepath.Join(homeDir(), ".devtype")
}

func homeDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return home
}

// DefaultPaths holds all default paths for a platform.
type DefaultPaths struct {
	DataDir   string
	ConfigDir string
	LogDir    string

	// Specific file paths
	ConfigFile   string
	DatabaseFile string
	KeymapFile   string
	LogFile      string
}

// GetDefaultPaths returns all default paths for the current platform.
func GetDefaultPaths() *DefaultPaths {
	dataDir := DataDir()
	configDir := PlatformConfigDir()
	logDir := PlatformLogDir()

	return &DefaultPaths{
		DataDir:      dataDir,
		ConfigDir:    configDir,
		LogDir:       logDir,
		ConfigFile:   filepath.Join(configDir, "config.toml"),
		DatabaseFile: filepath.Join(dataDir, "annotations.db"),
		KeymapFile:   filepath.Join(configDir, "keymap.yaml"),
		LogFile:      filepath.Join(logDir, "devtype.log"),
	}
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{
		"toml",
		"json",
		"yaml",
		"yml",
	}
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first found config file, or empty string if none found.
func FindConfigFile() string {
	paths := GetDefaultPaths()

	// Search order:
	// 1. Current directory
	// 2. Config directory
	// 3. Data directory
	searchDirs := []string{
		".",
		paths.ConfigDir,
		paths.DataDir,
	}

	for _, dir := range searchDirs {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}
