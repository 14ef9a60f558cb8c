// Package config handles loading and validating doorgate configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker credentials and the InfluxDB token should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - TLS key files are referenced by path and never loaded into the config struct
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Topics.Logs)
package config
