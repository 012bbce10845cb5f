package handlers

import (
	"net/http"
	"runtime"
	"sync"

	apperrors "github.com/3leaps/protsearch/internal/errors"
)

type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

var (
	versionMu   sync.RWMutex
	versionInfo = VersionInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}
)

// SetVersionInfo sets the build metadata reported by VersionHandler.
func SetVersionInfo(version, commit, buildDate string) {
	versionMu.Lock()
	defer versionMu.Unlock()
	versionInfo = VersionInfo{Version: version, Commit: commit, BuildDate: buildDate}
}

func GetVersionInfo() VersionInfo {
	versionMu.RLock()
	defer versionMu.RUnlock()
	info := versionInfo
	info.GoVersion = runtime.Version()
	return info
}

func VersionHandler(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteJSON(w, http.StatusOK, GetVersionInfo())
}
