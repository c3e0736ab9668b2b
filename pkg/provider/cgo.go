//go:build cgo

package provider

const cgoEnabled = true
