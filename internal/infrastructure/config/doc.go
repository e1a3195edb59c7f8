// Package config handles loading and validating cloud bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (cloud tokens, MQTT passwords) should be set via
//     environment variables rather than the config file
//   - The config file should have restricted permissions (0600)
//   - The JWT secret must be set before the API server will start
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Particle.APIURL)
package config
