package version

import (
	"fmt"
	"io"
	"runtime"

	"github.com/nartya-app/nartya/internal/cache"
)

const (
	Version = "0.4.0"
)

// String is the one-line version banner.
func String() string {
	s := fmt.Sprintf("Nartya v%s %s/%s", Version, runtime.GOOS, runtime.GOARCH)
	if cache.SQLiteAvailable {
		return s + " (with SQLite cache)"
	}
	return s + " (without SQLite cache)"
}

func ShowVersion(w io.Writer) {
	fmt.Fprintln(w, String())
}
