//go:build !cgo

package cache

// go-sqlite3 needs cgo. Without it the cache stays in memory.
func init() {
	SQLiteAvailable = false
}
