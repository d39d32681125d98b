package device

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity names this machine in backend requests.
type Identity struct {
	ID   string
	Name string
}

// Resolver derives a stable machine identity.
type Resolver struct {
	goos     string
	readFile func(string) ([]byte, error)
	command  func(ctx context.Context, name string, args ...string) ([]byte, error)
	hostname func() (string, error)
}

func NewResolver() *Resolver {
	return &Resolver{
		goos:     runtime.GOOS,
		readFile: os.ReadFile,
		command: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
		hostname: os.Hostname,
	}
}

// Resolve returns the configured values when set. Otherwise the ID comes
// from the OS machine identifier, then the hostname, then a random UUID.
func (r *Resolver) Resolve(id, name string) Identity {
	if name == "" {
		name, _ = r.hostname()
	}
	if id == "" {
		id = r.machineID()
	}
	if id == "" {
		if name != "" {
			id = r.goos + "-" + name
		} else {
			id = uuid.NewString()
		}
	}
	return Identity{ID: id, Name: name}
}

func (r *Resolver) machineID() string {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	switch r.goos {
	case "windows":
		out, err := r.command(ctx, "reg", "query", `HKLM\SOFTWARE\Microsoft\Cryptography`, "/v", "MachineGuid")
		if err != nil {
			return ""
		}
		for _, line := range strings.Split(string(out), "\n") {
			fields := strings.Fields(line)
			if len(fields) == 3 && fields[0] == "MachineGuid" {
				return fields[2]
			}
		}
	case "darwin":
		out, err := r.command(ctx, "ioreg", "-rd1", "-c", "IOPlatformExpertDevice")
		if err != nil {
			return ""
		}
		for _, line := range strings.Split(string(out), "\n") {
			if !strings.Contains(line, "IOPlatformUUID") {
				continue
			}
			if parts := strings.SplitN(line, "=", 2); len(parts) == 2 {
				return strings.Trim(strings.TrimSpace(parts[1]), `"`)
			}
		}
	default:
		for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
			if data, err := r.readFile(path); err == nil {
				if id := strings.TrimSpace(string(data)); id != "" {
					return id
				}
			}
		}
	}
	return ""
}
