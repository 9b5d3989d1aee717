// Package config handles loading and validating the gateway service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker passwords and the InfluxDB token should be set via environment
//     variables or a config file with restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Ingest.Capacity)
//
// Gateways listed under "gateways" are seeded into the database at startup;
// the database is the source of truth from then on.
package config
