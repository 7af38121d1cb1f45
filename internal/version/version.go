// Package version хранит сведения о сборке, заполняемые через -ldflags.
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает текущую сборку.
type Build struct {
	Version string
	Commit  string
	Date    string
}

// Current возвращает сведения о сборке.
func Current() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

func (b Build) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
}

// UserAgent возвращает значение заголовка User-Agent для исходящих запросов к маркетплейсам.
func (b Build) UserAgent() string {
	return "stockwatch/" + b.Version
}
