// Package config defines the compiler configuration object and loads it
// from a sprocket.yaml manifest.
package config
