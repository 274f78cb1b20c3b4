// Package config handles loading and validating virt-foo daemon configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with VIRTFOO_* environment variables
//   - Validation of required fields, reporting every failure at once
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (passwords, tokens, the JWT secret) should be set via
//     environment variables
//   - A JWT secret, when set, must be at least 32 characters
//
// Usage:
//
//	cfg, err := config.Load(config.PathFromEnv())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.ChipID)
package config
