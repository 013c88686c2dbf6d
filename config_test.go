package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ircd.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestConfigDefaults(t *testing.T) {
	s := &Server{}
	require.NoError(t, s.checkAndParseConfig(""))

	assert.Equal(t, "6667", s.Config.ListenPort)
	assert.Equal(t, "mock.server", s.Config.ServerName)
	assert.Equal(t, 30, s.Config.MaxNickLength)
	assert.Equal(t, 30*time.Second, s.Config.PingInterval)
	assert.Equal(t, 100*time.Second, s.Config.SweepInterval)
	assert.Equal(t, 280*time.Second, s.Config.DeadTime)
	assert.Empty(t, s.Config.Opers)
}

func TestConfigOverrides(t *testing.T) {
	opersPath := writeTestConfig(t, "admin = secret\n")

	path := writeTestConfig(t, `
listen-port = 7000
server-name = irc.example.com
ping-interval = 5s
dead-time = 20s
opers-config = `+opersPath+`
`)

	s := &Server{}
	require.NoError(t, s.checkAndParseConfig(path))

	assert.Equal(t, "7000", s.Config.ListenPort)
	assert.Equal(t, "irc.example.com", s.Config.ServerName)
	assert.Equal(t, 5*time.Second, s.Config.PingInterval)
	assert.Equal(t, 20*time.Second, s.Config.DeadTime)

	// Keys the file doesn't set keep their defaults.
	assert.Equal(t, "0.0.0.0", s.Config.ListenHost)
	assert.Equal(t, "ircd-1.0.0", s.Config.Version)

	assert.Equal(t, map[string]string{"admin": "secret"}, s.Config.Opers)
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad duration", "ping-interval = soon\n"},
		{"bad nick length", "max-nick-length = many\n"},
		{"cert without key", "tls-cert = /tmp/cert.pem\n"},
		{"missing opers file", "opers-config = /does/not/exist\n"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := writeTestConfig(t, test.content)
			s := &Server{}
			assert.Error(t, s.checkAndParseConfig(path))
		})
	}
}
