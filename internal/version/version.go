package version

// Version is overridden at build time with
// -ldflags "-X archpilot/internal/version.Version=...".
var Version = "dev"
