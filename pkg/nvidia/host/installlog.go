// pkg/nvidia/host/installlog.go

package host

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"

	cerr "github.com/cockroachdb/errors"
)

const (
	DefaultAptHistory = "/var/log/apt/history.log"
	DefaultDnfLog     = "/var/log/dnf.log"
)

// maxEntryLen caps how much of a log line ends up in a report.
const maxEntryLen = 200

// AptHistory reads apt's history log.
type AptHistory struct {
	Path string
}

// LastEntry returns the latest transaction line mentioning pkg, prefixed
// with the transaction start date.
func (h *AptHistory) LastEntry(_ context.Context, pkg string) (string, bool, error) {
	data, err := readLog(h.Path, DefaultAptHistory)
	if err != nil || data == "" {
		return "", false, err
	}
	entry, ok := ParseAptHistory(data, pkg)
	return entry, ok, nil
}

// ParseAptHistory scans apt history stanzas for the last Install, Upgrade,
// Remove or Purge line naming pkg.
func ParseAptHistory(data, pkg string) (string, bool) {
	var date, last string
	sc := bufio.NewScanner(strings.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		key, value, found := strings.Cut(line, ": ")
		if !found {
			continue
		}
		switch key {
		case "Start-Date":
			date = strings.TrimSpace(value)
		case "Install", "Upgrade", "Remove", "Purge", "Reinstall":
			if mentionsPackage(value, pkg, aptNameEnd) {
				entry := key + ": " + value
				if date != "" {
					entry = date + " " + entry
				}
				last = truncate(entry)
			}
		}
	}
	return last, last != ""
}

// DnfLog reads dnf's log file.
type DnfLog struct {
	Path string
}

// LastEntry returns the latest log line mentioning pkg.
func (l *DnfLog) LastEntry(_ context.Context, pkg string) (string, bool, error) {
	data, err := readLog(l.Path, DefaultDnfLog)
	if err != nil || data == "" {
		return "", false, err
	}
	entry, ok := ParseDnfLog(data, pkg)
	return entry, ok, nil
}

// ParseDnfLog returns the last transaction line naming pkg.
func ParseDnfLog(data, pkg string) (string, bool) {
	var last string
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if !mentionsPackage(line, pkg, dnfNameEnd) {
			continue
		}
		for _, marker := range []string{"Installed:", "Upgraded:", "Upgrade:", "Erase:", "Removed:", "Install:"} {
			if strings.Contains(line, marker) {
				last = truncate(line)
				break
			}
		}
	}
	return last, last != ""
}

func readLog(path, fallback string) (string, error) {
	if path == "" {
		path = fallback
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", cerr.Wrapf(err, "read %s", path)
	}
	return string(data), nil
}

// mentionsPackage reports whether text names pkg itself rather than a longer
// package that shares its prefix. end checks what follows the name.
func mentionsPackage(text, pkg string, end func(rest string) bool) bool {
	if pkg == "" {
		return false
	}
	for from := 0; ; {
		i := strings.Index(text[from:], pkg)
		if i < 0 {
			return false
		}
		start := from + i
		if (start == 0 || !isNameByte(text[start-1])) && end(text[start+len(pkg):]) {
			return true
		}
		from = start + 1
	}
}

// aptNameEnd matches "pkg:arch (version)" and "pkg (version)".
func aptNameEnd(rest string) bool {
	return strings.HasPrefix(rest, ":") || strings.HasPrefix(rest, "(") || strings.HasPrefix(rest, " (")
}

// dnfNameEnd matches "pkg-[epoch:]version-release.arch".
func dnfNameEnd(rest string) bool {
	return len(rest) > 1 && rest[0] == '-' && rest[1] >= '0' && rest[1] <= '9'
}

func isNameByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("-._+", c) >= 0
}

// truncate caps s at maxEntryLen bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= maxEntryLen {
		return s
	}
	cut := maxEntryLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
