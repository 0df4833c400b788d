// Package templates owns the index template definitions.
//
// Definitions ship embedded as YAML and are rendered under the configured
// index prefix: template <name> becomes <prefix>.v1.<name> and accepts the
// index names <prefix>.v1.<name>.*. Update reconciles the registered
// templates of a backend with those definitions.
package templates
