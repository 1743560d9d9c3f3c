package version

// Version is the current version of warpcall.
// Overridden at build time with:
//   go build -ldflags="-X 'github.com/BioHazard786/Warpcall/internal/version.Version=v1.0.0'"
var Version = "dev"
