package version

// Version is the current version of argo-forecast.
// This value is set at build time using ldflags:
// -ldflags "-X github.com/rxtech-lab/argo-forecast/internal/version.Version=1.2.3"
// The default value "main" indicates a development build.
var Version = "main"

// GetVersion returns the current version of the build.
func GetVersion() string {
	return Version
}

// IsDevelopment reports whether the build carries no release version.
func IsDevelopment(v string) bool {
	return v == "" || v == "main"
}
