package config

import "fmt"

// validate mirrors async_proxy.py's _validate_config: a fixed list of
// required, non-zero fields, plus checks the distillation's config surface
// adds (replay window bounds, PSK presence outside dev, DSCP range).
func validate(c Config) []string {
	var errs []string

	requirePositivePort := func(name string, v int) {
		if v <= 0 || v > 65535 {
			errs = append(errs, fmt.Sprintf("%s must be a valid port (1-65535), got %d", name, v))
		}
	}
	requirePositivePort("tcp_handshake_port", c.TCPHandshakePort)
	requirePositivePort("udp_drone_rx", c.UDPDroneRx)
	requirePositivePort("udp_gcs_rx", c.UDPGCSRx)
	requirePositivePort("drone_plaintext_tx", c.DronePlaintextTx)
	requirePositivePort("drone_plaintext_rx", c.DronePlaintextRx)
	requirePositivePort("gcs_plaintext_tx", c.GCSPlaintextTx)
	requirePositivePort("gcs_plaintext_rx", c.GCSPlaintextRx)

	if c.DroneHost == "" {
		errs = append(errs, "drone_host must be set")
	}
	if c.GCSHost == "" {
		errs = append(errs, "gcs_host must be set")
	}

	if c.ReplayWindow == 0 || c.ReplayWindow > 64 {
		errs = append(errs, fmt.Sprintf("replay_window must be in 1-64 (sliding window is bitmask-backed), got %d", c.ReplayWindow))
	}

	if c.Env != "dev" && len(c.DronePSK) == 0 {
		errs = append(errs, "DRONE_PSK environment variable must be set outside env=dev")
	}
	if len(c.DronePSK) != 0 && len(c.DronePSK) < 16 {
		errs = append(errs, fmt.Sprintf("DRONE_PSK decodes to %d bytes, want at least 16", len(c.DronePSK)))
	}

	if c.EncryptedDSCP < 0 || c.EncryptedDSCP > 63 {
		errs = append(errs, fmt.Sprintf("encrypted_dscp must be 0-63, got %d", c.EncryptedDSCP))
	}

	if c.HandshakeRLBurst <= 0 {
		errs = append(errs, "handshake_rl_burst must be positive")
	}
	if c.HandshakeRLRefillPerSec <= 0 {
		errs = append(errs, "handshake_rl_refill_per_sec must be positive")
	}

	if c.InitialSuiteID == "" {
		errs = append(errs, "initial_suite_id must be set")
	}

	if c.SecretsDir == "" {
		errs = append(errs, "secrets_dir must be set")
	}

	if c.ControlAPIEnabled && c.ControlAPIAddr == "" {
		errs = append(errs, "control_api_addr must be set when control_api_enabled is true")
	}

	if c.CoordinatorRole != "drone" && c.CoordinatorRole != "gcs" {
		errs = append(errs, fmt.Sprintf("control_coordinator_role must be \"drone\" or \"gcs\", got %q", c.CoordinatorRole))
	}

	return errs
}
