package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/export"
)

// edlHandler serves the EDL sidecar written next to the montage.
func edlHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.OutputPath == "" {
			WriteError(w, http.StatusNotFound, "no montage configured", "NOT_FOUND")
			return
		}

		path := export.EDLPath(cfg.OutputPath)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				WriteError(w, http.StatusNotFound, "edit decision list not found", "EDL_NOT_FOUND")
				return
			}
			cfg.Logger.Error("failed to read edl", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to read edit decision list", "INTERNAL_ERROR")
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+export.SanitizeName(filepath.Base(path), 120)+`"`)
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}
