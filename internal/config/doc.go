// Package config loads runtime configuration from multiple sources (YAML files,
// environment variables, CLI flags) with precedence: CLI flags > YAML config >
// Environment variables > Defaults. It exposes strongly typed settings,
// including the build settings and initial transform registry consumed by the
// rule synthesizer.
package config
