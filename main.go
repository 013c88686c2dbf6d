// ircd is a single server IRC daemon. It speaks the client protocol
// from RFC 2812 over TCP, optionally with TLS.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
)

func main() {
	configFile := flag.String("conf", "", "Configuration file.")
	logLevel := flag.String("log-level", "info",
		"Log level (debug, info, warn, error).")
	flag.Parse()

	logrus.SetFormatter(&nested.Formatter{
		TimestampFormat: "2006-01-02 15:04:05",
		HideKeys:        true,
	})

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", err)
	}
	logrus.SetLevel(level)

	server, err := newServer(*configFile)
	if err != nil {
		logrus.Fatalf("Configuration problem: %s", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalChan
		logrus.Infof("Received signal: %s", sig)
		server.shutdown()
	}()

	if err := server.start(); err != nil {
		logrus.Fatalf("Server failed: %s", err)
	}

	logrus.Info("Server shut down cleanly.")
}
