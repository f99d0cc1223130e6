// Package config loads the configuration of the wfmanager binary.
//
// Values come from three layers, later ones winning:
//
//  1. built-in defaults (Default)
//  2. an optional YAML or JSON file
//  3. WFMANAGER_* environment variables, with "." in a key replaced by "_"
//     (nats.url is overridden by WFMANAGER_NATS_URL)
//
// The merged result is validated with struct tags; every violation is
// listed in a single error wrapping errors.ErrInvalidConfig.
//
//	cfg, err := config.Load("wfmanager.yaml")
//	if err != nil {
//		return err
//	}
//
// A file needs only the keys it changes:
//
//	nats:
//	  url: nats://nats.internal:4222
//	notification:
//	  handshake_timeout: 2s
package config
