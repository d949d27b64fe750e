package handler

import (
	"net/http"
	"os"

	"github.com/kiranshivaraju/clipcutter/internal/api/response"
	"github.com/kiranshivaraju/clipcutter/internal/artifacts"
)

// mediaFS hides directories so the file server never lists a job's contents.
type mediaFS struct {
	http.FileSystem
}

func (fs mediaFS) Open(name string) (http.File, error) {
	f, err := fs.FileSystem.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}

// NewMediaHandler serves rendered artifacts below layout.URLPrefix. Range
// requests are handled by http.ServeContent through the file server.
func NewMediaHandler(layout artifacts.Layout) http.Handler {
	files := http.StripPrefix(layout.URLPrefix, http.FileServer(mediaFS{http.Dir(layout.Root)}))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Media is read-only", nil)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	})
}
