package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/horgh/config"
)

// Config holds the server's configuration.
type Config struct {
	ListenHost string
	ListenPort string

	// TLS certificate and key paths. Both blank means listen without TLS,
	// which is only sensible for tests.
	TLSCert string
	TLSKey  string

	ServerName  string
	ServerInfo  string
	Version     string
	CreatedDate string
	MOTD        string

	MaxNickLength int

	// Period between PING rounds to registered clients.
	PingInterval time.Duration

	// Period between idle sweeps.
	SweepInterval time.Duration

	// Period of time a client can be quiet before we consider it dead.
	DeadTime time.Duration

	// Oper name to password.
	Opers map[string]string
}

// Defaults match the reference deployment.
var configDefaults = map[string]string{
	"listen-host":     "0.0.0.0",
	"listen-port":     "6667",
	"tls-cert":        "",
	"tls-key":         "",
	"server-name":     "mock.server",
	"server-info":     "Servidor IRC",
	"version":         "ircd-1.0.0",
	"created-date":    "2024-12-01",
	"motd":            "Bienvenido al servidor",
	"max-nick-length": "30",
	"ping-interval":   "30s",
	"sweep-interval":  "100s",
	"dead-time":       "280s",
	"opers-config":    "",
}

// checkAndParseConfig loads the configuration keys and validates their
// format. Any key absent from the file takes its default. A blank file
// name means all defaults.
func (s *Server) checkAndParseConfig(file string) error {
	configMap := map[string]string{}

	if len(file) > 0 {
		m, err := config.ReadStringMap(file)
		if err != nil {
			return err
		}
		configMap = m
	}

	get := func(key string) string {
		if v, exists := configMap[key]; exists && len(v) > 0 {
			return v
		}
		return configDefaults[key]
	}

	s.Config.ListenHost = get("listen-host")
	s.Config.ListenPort = get("listen-port")
	s.Config.TLSCert = get("tls-cert")
	s.Config.TLSKey = get("tls-key")
	s.Config.ServerName = get("server-name")
	s.Config.ServerInfo = get("server-info")
	s.Config.Version = get("version")
	s.Config.CreatedDate = get("created-date")
	s.Config.MOTD = get("motd")

	if (s.Config.TLSCert == "") != (s.Config.TLSKey == "") {
		return fmt.Errorf("tls-cert and tls-key must be set together")
	}

	nickLen64, err := strconv.ParseInt(get("max-nick-length"), 10, 8)
	if err != nil || nickLen64 <= 0 {
		return fmt.Errorf("max nick length is not valid")
	}
	s.Config.MaxNickLength = int(nickLen64)

	s.Config.PingInterval, err = time.ParseDuration(get("ping-interval"))
	if err != nil {
		return fmt.Errorf("ping interval is in invalid format: %s", err)
	}

	s.Config.SweepInterval, err = time.ParseDuration(get("sweep-interval"))
	if err != nil {
		return fmt.Errorf("sweep interval is in invalid format: %s", err)
	}

	s.Config.DeadTime, err = time.ParseDuration(get("dead-time"))
	if err != nil {
		return fmt.Errorf("dead time is in invalid format: %s", err)
	}

	s.Config.Opers = map[string]string{}
	if opersFile := get("opers-config"); len(opersFile) > 0 {
		opers, err := config.ReadStringMap(opersFile)
		if err != nil {
			return fmt.Errorf("unable to load opers config: %s", err)
		}
		s.Config.Opers = opers
	}

	return nil
}
