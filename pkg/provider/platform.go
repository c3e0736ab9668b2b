package provider

import "runtime"

// Platform is what a provider checks to decide whether it applies.
type Platform struct {
	OS  string
	CGO bool
}

// Current describes the running binary.
func Current() Platform {
	return Platform{OS: runtime.GOOS, CGO: cgoEnabled}
}
