package config

// Option adjusts how Load locates configuration.
type Option func(*options)

type options struct {
	configPath  string
	envPrefix   string
	searchPaths []string
}

// WithConfigFile specifies an explicit configuration file path. A --config
// flag takes precedence.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configPath = path
	}
}

// WithEnvPrefix specifies a custom environment variable prefix.
// Default is "HOUSEMON".
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.envPrefix = prefix
	}
}

// WithSearchPaths replaces the directories searched for housemon.{toml,yaml}.
func WithSearchPaths(paths ...string) Option {
	return func(o *options) {
		o.searchPaths = paths
	}
}
