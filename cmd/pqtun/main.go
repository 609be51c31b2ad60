// Command pqtun runs one endpoint (Drone or GCS) of the post-quantum
// secure tunnel, or (via the init-identity subcommand) provisions the
// GCS's persistent signing identity, mirroring
// original_source/core/run_proxy.py's CLI entry points.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap/zapcore"

	"github.com/skywave-systems/pqtun-core/internal/config"
	"github.com/skywave-systems/pqtun-core/internal/identity"
	"github.com/skywave-systems/pqtun-core/internal/logging"
	"github.com/skywave-systems/pqtun-core/internal/suites"
	"github.com/skywave-systems/pqtun-core/tunnel"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init-identity" {
		runInitIdentity(os.Args[2:])
		return
	}
	runTunnel(os.Args[1:])
}

func runInitIdentity(args []string) {
	fs := flag.NewFlagSet("init-identity", flag.ExitOnError)
	secretsDir := fs.String("secrets-dir", "secrets", "directory to write the GCS signing keypair into")
	suiteID := fs.String("suite", suites.DefaultSuiteID, "cipher suite whose signature scheme to generate a keypair for")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("init-identity: %v", err)
	}

	reg := suites.NewRegistry(true, true)
	suite, err := reg.Get(*suiteID)
	if err != nil {
		log.Fatalf("init-identity: resolving suite %q: %v", *suiteID, err)
	}

	if _, err := identity.Generate(*secretsDir, suite); err != nil {
		log.Fatalf("init-identity: %v", err)
	}

	secretPath, publicPath := identity.Paths(*secretsDir)
	result := map[string]string{
		"secret_key_path": secretPath,
		"public_key_path": publicPath,
		"sig_name":        suite.SigName,
	}
	_ = json.NewEncoder(os.Stdout).Encode(result)
}

func runTunnel(args []string) {
	fs := flag.NewFlagSet("pqtun", flag.ExitOnError)
	role := fs.String("role", "", "endpoint role: drone or gcs")
	configPath := fs.String("config", "config.yaml", "path to the tunnel's YAML configuration file")
	devMode := fs.Bool("dev", false, "use a human-readable console logger instead of JSON")
	logLevel := fs.String("log-level", "info", "zap log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("pqtun: %v", err)
	}

	var roleValue logging.Role
	switch *role {
	case "drone":
		roleValue = logging.RoleDrone
	case "gcs":
		roleValue = logging.RoleGCS
	default:
		log.Fatalf("pqtun: -role must be \"drone\" or \"gcs\", got %q", *role)
	}

	var level zapcore.Level
	if err := level.Set(*logLevel); err != nil {
		log.Fatalf("pqtun: invalid -log-level %q: %v", *logLevel, err)
	}

	logger, err := logging.New(roleValue, level, *devMode)
	if err != nil {
		log.Fatalf("pqtun: building logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("pqtun: loading config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("pqtun: shutting down")
		cancel()
	}()

	ready := map[string]string{"role": *role, "config": *configPath}
	_ = json.NewEncoder(os.Stdout).Encode(ready)

	if err := tunnel.Run(ctx, roleValue, cfg, logger); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
