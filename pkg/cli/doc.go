// Package cli implements the sprocket command line front-end.
package cli
