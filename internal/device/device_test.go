package device

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResolver(goos string) *Resolver {
	return &Resolver{
		goos:     goos,
		readFile: func(string) ([]byte, error) { return nil, errors.New("not found") },
		command: func(context.Context, string, ...string) ([]byte, error) {
			return nil, errors.New("not found")
		},
		hostname: func() (string, error) { return "workstation", nil },
	}
}

func TestResolveKeepsConfiguredValues(t *testing.T) {
	id := testResolver("linux").Resolve("dev-1", "Laptop")
	assert.Equal(t, Identity{ID: "dev-1", Name: "Laptop"}, id)
}

func TestResolveLinuxMachineID(t *testing.T) {
	r := testResolver("linux")
	r.readFile = func(path string) ([]byte, error) {
		if path == "/var/lib/dbus/machine-id" {
			return []byte("abc123\n"), nil
		}
		return nil, errors.New("not found")
	}

	id := r.Resolve("", "")
	assert.Equal(t, "abc123", id.ID)
	assert.Equal(t, "workstation", id.Name)
}

func TestResolveWindowsMachineGuid(t *testing.T) {
	r := testResolver("windows")
	r.command = func(_ context.Context, name string, _ ...string) ([]byte, error) {
		require.Equal(t, "reg", name)
		return []byte("\r\nHKEY_LOCAL_MACHINE\\SOFTWARE\\Microsoft\\Cryptography\r\n    MachineGuid    REG_SZ    1b2c-3d4e\r\n"), nil
	}
	assert.Equal(t, "1b2c-3d4e", r.Resolve("", "").ID)
}

func TestResolveDarwinPlatformUUID(t *testing.T) {
	r := testResolver("darwin")
	r.command = func(context.Context, string, ...string) ([]byte, error) {
		return []byte(`    "IOPlatformUUID" = "A1B2-C3D4"` + "\n"), nil
	}
	assert.Equal(t, "A1B2-C3D4", r.Resolve("", "").ID)
}

func TestResolveFallbacks(t *testing.T) {
	assert.Equal(t, "linux-workstation", testResolver("linux").Resolve("", "").ID)

	r := testResolver("linux")
	r.hostname = func() (string, error) { return "", errors.New("no hostname") }
	id := r.Resolve("", "")
	_, err := uuid.Parse(id.ID)
	assert.NoError(t, err)
}
