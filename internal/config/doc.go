// Package config handles configuration loading for pasarbot.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and duration parsing.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from PASARBOT_CONFIG environment variable
//  2. ./pasarbot.yaml (current directory)
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	telegram:
//	  token: "${PASARBOT_TELEGRAM_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	guard:
//	  dedup_ttl: "2m"
//	  rate_window: "10s"
//
//	dispatch:
//	  welcome_cooldown: "12h"
//	  flow_timeout: "1h"
//
// Supported units: ns, us, ms, s, m, h
//
// # Validation
//
// Load rejects configurations with a missing database path, an enabled
// Telegram integration without a token, an admin API address without an
// auth token, or an unknown release mode.
package config
