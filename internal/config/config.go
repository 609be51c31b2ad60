// Package config loads and validates the tunnel's YAML configuration,
// mirroring original_source/core/config.py's CONFIG dict and
// _validate_config, with secrets (the Drone PSK) overridable from the
// environment so they never need to live in a checked-in file (spec
// section 6.1).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the fully-resolved, validated tunnel configuration for one
// endpoint (Drone or GCS).
type Config struct {
	TCPHandshakePort int `yaml:"tcp_handshake_port"`
	UDPDroneRx       int `yaml:"udp_drone_rx"`
	UDPGCSRx         int `yaml:"udp_gcs_rx"`

	DronePlaintextTx   int    `yaml:"drone_plaintext_tx"`
	DronePlaintextRx   int    `yaml:"drone_plaintext_rx"`
	GCSPlaintextTx     int    `yaml:"gcs_plaintext_tx"`
	GCSPlaintextRx     int    `yaml:"gcs_plaintext_rx"`
	DronePlaintextHost string `yaml:"drone_plaintext_host"`
	GCSPlaintextHost   string `yaml:"gcs_plaintext_host"`

	DroneHost string `yaml:"drone_host"`
	GCSHost   string `yaml:"gcs_host"`

	// DronePSK is the raw pre-shared key (hex-decoded). It is never read
	// from YAML directly — only from the DRONE_PSK environment variable —
	// so a config file committed to source control can never leak it.
	DronePSK []byte `yaml:"-"`

	ReplayWindow uint64 `yaml:"replay_window"`
	WireVersion  byte   `yaml:"wire_version"`

	RekeyHandshakeTimeoutSeconds float64 `yaml:"rekey_handshake_timeout_s"`
	BareSuiteDwellSeconds        float64 `yaml:"bare_suite_dwell_s"`
	BareConfirmTimeoutSeconds    float64 `yaml:"bare_confirm_timeout_s"`
	BarePollIntervalSeconds      float64 `yaml:"bare_poll_interval_s"`

	HandshakeRLBurst         int     `yaml:"handshake_rl_burst"`
	HandshakeRLRefillPerSec  float64 `yaml:"handshake_rl_refill_per_sec"`

	EncryptedDSCP int `yaml:"encrypted_dscp"`

	EnablePacketType bool `yaml:"enable_packet_type"`
	EnableAscon      bool `yaml:"enable_ascon"`
	EnableAscon128A  bool `yaml:"enable_ascon128a"`

	// CoordinatorRole names which side ("drone" or "gcs") may originate a
	// rekey; the other side only ever follows (spec section 3.5's
	// control-state coordinator_role, surfaced as config per section 6.1).
	CoordinatorRole string `yaml:"control_coordinator_role"`

	// StrictUDPPeerMatch requires the encrypted socket's ingress source to
	// match enc_peer on both IP and port; when false only the IP is
	// checked, tolerating a peer that rebinds its source port.
	StrictUDPPeerMatch bool `yaml:"strict_udp_peer_match"`

	// StrictHandshakeIP rejects an inbound TCP handshake connection whose
	// remote IP is not the configured peer host, closing it silently
	// before it ever reaches internal/handshake.
	StrictHandshakeIP bool `yaml:"strict_handshake_ip"`

	InitialSuiteID string `yaml:"initial_suite_id"`

	StatusFilePath     string  `yaml:"status_file_path"`
	StatusFileInterval float64 `yaml:"status_file_interval_s"`

	ControlAPIEnabled bool   `yaml:"control_api_enabled"`
	ControlAPIAddr    string `yaml:"control_api_addr"`

	// SecretsDir holds the GCS's persistent signing identity
	// (gcs_signing.key / gcs_signing.pub), created with `pqtun init-identity`.
	SecretsDir string `yaml:"secrets_dir"`

	Env string `yaml:"env"`
}

// defaults mirrors core/config.py's CONFIG dict literal values.
func defaults() Config {
	return Config{
		TCPHandshakePort:   46000,
		UDPDroneRx:         46012,
		UDPGCSRx:           46011,
		DronePlaintextTx:   47003,
		DronePlaintextRx:   47004,
		GCSPlaintextTx:     47001,
		GCSPlaintextRx:     47002,
		DronePlaintextHost: "127.0.0.1",
		GCSPlaintextHost:   "127.0.0.1",

		ReplayWindow: 1024,
		WireVersion:  1,

		RekeyHandshakeTimeoutSeconds: 45.0,
		BareSuiteDwellSeconds:        10.0,
		BareConfirmTimeoutSeconds:    10.0,
		BarePollIntervalSeconds:      2.0,

		HandshakeRLBurst:        5,
		HandshakeRLRefillPerSec: 1,

		EncryptedDSCP: 46,

		EnablePacketType: true,
		EnableAscon:      true,
		EnableAscon128A:  true,

		CoordinatorRole:    "drone",
		StrictUDPPeerMatch: true,
		StrictHandshakeIP:  false,

		StatusFileInterval: 5.0,
		SecretsDir:         "secrets",
		Env:                "production",
	}
}

// Load reads a YAML file at path, applies defaults for any field YAML left
// at its zero value only where zero is not itself a legitimate setting,
// overlays the DRONE_PSK environment variable, and validates the result.
func Load(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: reading %s: %v", ErrConfig, path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parsing %s: %v", ErrConfig, path, err)
	}

	if psk, ok := os.LookupEnv("DRONE_PSK"); ok {
		decoded, err := decodeHexPSK(psk)
		if err != nil {
			return Config{}, fmt.Errorf("%w: DRONE_PSK: %v", ErrConfig, err)
		}
		cfg.DronePSK = decoded
	}

	if errs := validate(cfg); len(errs) > 0 {
		return Config{}, &ValidationError{Errors: errs}
	}
	return cfg, nil
}
