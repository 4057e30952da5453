package version

// Version is the touchgrass release version, overridden at build time via
// -ldflags "-X touchgrass/internal/version.Version=...".
var Version = "0.1.0"
