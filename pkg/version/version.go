// Package version provides build version information for settingsd.
package version

// Version is the current version of settingsd.
const Version = "0.1.0-dev"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
