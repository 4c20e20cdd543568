//go:build debug

package dist

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// Content serves the files next to this source file so the UI can be edited
// without rebuilding.
var Content fs.FS

func init() {
	_, file, _, _ := runtime.Caller(0)
	Content = os.DirFS(filepath.Dir(file))
}
