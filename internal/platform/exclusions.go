package platform

import (
	"strings"
)

var windowsSystemProcesses = []string{
	"System", "Registry", "smss.exe", "csrss.exe", "wininit.exe",
	"services.exe", "lsass.exe", "svchost.exe", "winlogon.exe",
	"dwm.exe", "conhost.exe", "dllhost.exe", "taskhostw.exe",
	"explorer.exe", "RuntimeBroker.exe", "ShellExperienceHost.exe",
	"SearchUI.exe", "sihost.exe", "ctfmon.exe", "WmiPrvSE.exe",
	"spoolsv.exe", "SearchIndexer.exe", "fontdrvhost.exe",
	"WUDFHost.exe", "LsaIso.exe", "SgrmBroker.exe", "audiodg.exe",
	"dasHost.exe", "SearchProtocolHost.exe", "SearchFilterHost.exe",
}

var windowsSystemDirs = []string{
	`\Windows\`, `\Windows\System32\`, `\Windows\SysWOW64\`,
	`\Windows\WinSxS\`, `\Windows\servicing\`, `\ProgramData\`,
	`\Program Files\Common Files\`, `\Program Files (x86)\Common Files\`,
}

var unixSystemProcesses = []string{
	"init", "kthreadd", "ksoftirqd", "migration", "rcu_", "watchdog",
	"systemd", "systemd-journald", "systemd-udevd", "systemd-resolved",
	"systemd-logind", "systemd-oomd", "systemd-networkd", "systemd-timesyncd",
	"dbus", "dbus-daemon", "dbus-launch",
	"NetworkManager", "ModemManager", "wpa_supplicant", "dhclient",
	"polkitd", "udisksd", "upowerd", "colord", "accounts-daemon",
	"gnome-shell", "gnome-session-binary", "gnome-session-ctl",
	"gnome-keyring-daemon", "gnome-shell-calendar-server",
	"gnome-remote-desktop-daemon", "gdm3", "gdm-wayland-session",
	"gsd-a11y-settings", "gsd-color", "gsd-datetime", "gsd-housekeeping",
	"gsd-keyboard", "gsd-media-keys", "gsd-power", "gsd-print-notifications",
	"gsd-printer", "gsd-rfkill", "gsd-screensaver-proxy", "gsd-sharing",
	"gsd-smartcard", "gsd-sound", "gsd-wacom", "gsd-xsettings",
	"gsd-disk-utility-notify",
	"gvfsd", "gvfsd-trash", "gvfsd-metadata", "gvfsd-recent",
	"gvfsd-network", "gvfsd-dnssd", "gvfsd-admin",
	"gvfs-udisks2-volume-monitor", "gvfs-afc-volume-monitor",
	"gvfs-mtp-volume-monitor", "gvfs-goa-volume-monitor",
	"gvfs-gphoto2-volume-monitor",
	"ibus-daemon", "ibus-engine-simple", "ibus-extension-gtk3",
	"ibus-memconf", "ibus-portal", "ibus-x11",
	"at-spi-bus-launcher", "at-spi2-registryd",
	"xdg-desktop-portal", "xdg-desktop-portal-gnome", "xdg-desktop-portal-gtk",
	"xdg-document-portal", "xdg-permission-store",
	"evolution-source-registry", "evolution-calendar-factory",
	"evolution-addressbook-factory", "evolution-alarm-notify",
	"goa-daemon", "goa-identity-service", "gcr-ssh-agent",
	"dconf-service", "tracker-miner-fs-3",
	"pipewire", "wireplumber", "rtkit-daemon",
	"cupsd", "cups-browsed",
	"cron", "rsyslogd", "kerneloops", "snapd", "snapd-desktop-integration",
	"power-profiles-daemon", "switcheroo-control", "fwupd", "boltd",
	"packagekitd",
}

var unixSystemDirs = []string{
	"/usr/lib/systemd/", "/usr/libexec/", "/usr/lib/gnome-",
	"/usr/lib/gvfs/", "/usr/lib/evolution/", "/usr/lib/gsd-",
	"/lib/systemd/", "/sbin/", "/usr/sbin/",
}

// ProcessFilter drops operating system services so that only user
// applications are reported. Matching is case-insensitive.
type ProcessFilter struct {
	names map[string]struct{}
	dirs  []string
}

// NewProcessFilter returns the filter for goos ("windows" or any unix).
func NewProcessFilter(goos string) *ProcessFilter {
	names, dirs := unixSystemProcesses, unixSystemDirs
	if goos == "windows" {
		names, dirs = windowsSystemProcesses, windowsSystemDirs
	}

	f := &ProcessFilter{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		f.names[strings.ToLower(n)] = struct{}{}
	}
	for _, d := range dirs {
		f.dirs = append(f.dirs, strings.ToLower(d))
	}
	return f
}

// DefaultProcessFilter returns the filter for the running OS.
func DefaultProcessFilter() *ProcessFilter {
	return NewProcessFilter(currentOS())
}

// Allowed reports whether p is a user application. Processes without an
// executable path are never allowed.
func (f *ProcessFilter) Allowed(p Process) bool {
	if p.Exe == "" {
		return false
	}
	if _, ok := f.names[strings.ToLower(AppName(p.Exe))]; ok {
		return false
	}
	exe := strings.ToLower(p.Exe)
	for _, d := range f.dirs {
		if strings.Contains(exe, d) {
			return false
		}
	}
	return true
}

// AppName is the executable's base name. Both path separators are
// accepted so Windows paths resolve the same on every build.
func AppName(exe string) string {
	if i := strings.LastIndexAny(exe, `/\`); i >= 0 {
		return exe[i+1:]
	}
	return exe
}
