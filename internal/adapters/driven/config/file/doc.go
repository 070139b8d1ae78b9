// Package file stores configuration as TOML under the config directory
// (~/.kbengine/config.toml by default). Dotted keys such as
// "embedding.retry.max_attempts" map to nested tables in the file.
package file
