// Package web includes the status page served by the monitoring server.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path"
	"runtime"
	"strings"
)

//go:embed dist/*
var staticAssets embed.FS

// DevModeEnv is the environment variable that makes the server read the page
// from the source tree instead of the binary.
const DevModeEnv = "SIMTRACE_MONITOR_DEV"

// GetAssets returns the static assets
func GetAssets() http.FileSystem {
	if isDevelopmentMode() {
		_, assetPath, _, ok := runtime.Caller(0)
		if !ok {
			panic("error getting path")
		}

		return http.Dir(path.Join(path.Dir(assetPath), "dist"))
	}

	subFS, err := fs.Sub(staticAssets, "dist")
	if err != nil {
		panic(err)
	}

	return http.FS(subFS)
}

func isDevelopmentMode() bool {
	evValue, exist := os.LookupEnv(DevModeEnv)
	if !exist {
		return false
	}

	return strings.ToLower(evValue) == "true" || evValue == "1"
}
