// Package config handles loading and validating imagepub configuration.
//
// This package manages:
//   - Stock defaults matching the historical command-line defaults
//   - Loading an optional YAML file
//   - Overriding with environment variables (SOLACE_* and IMAGEPUB_*)
//   - Validation of required fields
//
// Command-line flags are applied on top by cmd/imagepub.
//
// Security Considerations:
//   - Passwords and tokens should be set via environment variables
//   - TLS certificate validation is off by default (tls.skip_verify) to
//     match self-signed broker deployments; enable it for production
//
// Usage:
//
//	cfg, err := config.Load("configs/imagepub.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Broker.Host)
package config
