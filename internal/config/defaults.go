package config

// GetDefaultConfigTemplate returns a fully commented config template
// that helps users understand all available options
func GetDefaultConfigTemplate() string {
	return `# stagefile configuration
# Environment overrides: STAGEFILE_<KEY>, nested keys joined by "__"
# (e.g. STAGEFILE_LOG__LEVEL=debug)

cache_dir: .stagefile/cache           # Content-addressable output cache
strict_schema: false                  # Reject unknown keys in stage files
jobs: 4                               # Concurrent status checks (1-256)
timeout: 0                            # Stage command timeout in seconds (0 = none)
shell: sh                             # Shell used as "<shell> -c <cmd>"

log:
  level: warn                         # debug | info | warn | error | disabled
  format: console                     # console | json
  no_color: false

history:
  enabled: true                       # Record runs in .stagefile/history.yaml
  max_entries: 500                    # Oldest entries are pruned (0 = keep all)

remotes:
  s3:
    enabled: false                    # Serve s3://bucket/key paths
    region: us-east-1
    endpoint: ""                      # S3-compatible endpoint (e.g. MinIO)
    access_key: ""                    # Empty = default AWS credential chain
    secret_key: ""
    force_path_style: false
  ssh:
    enabled: false                    # Serve ssh://host/path paths over SFTP
    host: ""
    port: 22
    user: ""
    password: ""
    key_file: ""                      # Private key, e.g. ~/.ssh/id_ed25519
    known_hosts: ""                   # Empty = ~/.ssh/known_hosts if present
`
}

// GetDefaults returns the default configuration values keyed by koanf path.
func GetDefaults() map[string]interface{} {
	return map[string]interface{}{
		"cache_dir":                   ".stagefile/cache",
		"strict_schema":               false,
		"jobs":                        4,
		"timeout":                     0,
		"shell":                       "sh",
		"log.level":                   "warn",
		"log.format":                  "console",
		"log.no_color":                false,
		"history.enabled":             true,
		"history.max_entries":         500,
		"remotes.s3.enabled":          false,
		"remotes.s3.region":           "us-east-1",
		"remotes.s3.endpoint":         "",
		"remotes.s3.access_key":       "",
		"remotes.s3.secret_key":       "",
		"remotes.s3.force_path_style": false,
		"remotes.ssh.enabled":         false,
		"remotes.ssh.host":            "",
		"remotes.ssh.port":            22,
		"remotes.ssh.user":            "",
		"remotes.ssh.password":        "",
		"remotes.ssh.key_file":        "",
		"remotes.ssh.known_hosts":     "",
	}
}
