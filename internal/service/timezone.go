package service

import (
	"os"
	"strings"
)

// LocalTimezone returns the IANA name of the machine's zone: $TZ, then the
// /etc/localtime symlink target, then "UTC".
func LocalTimezone() string {
	return localTimezone(os.Getenv, os.Readlink)
}

func localTimezone(getenv func(string) string, readlink func(string) (string, error)) string {
	if tz := strings.TrimPrefix(strings.TrimSpace(getenv("TZ")), ":"); tz != "" {
		return tz
	}
	if target, err := readlink("/etc/localtime"); err == nil {
		if i := strings.Index(target, "zoneinfo/"); i >= 0 {
			if tz := target[i+len("zoneinfo/"):]; tz != "" {
				return tz
			}
		}
	}
	return "UTC"
}
