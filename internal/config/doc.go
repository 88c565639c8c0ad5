// Package config handles configuration loading for chatd.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion and duration parsing.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${CHATD_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	chat:
//	  send_timeout: "15s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/chatd/chatd.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${CHATD_JWT_SECRET}"  # required
//	  token_ttl: "24h"
//
// Profile directory (optional; lookups degrade to ID-derived fallbacks
// when no base_url is configured):
//
//	profiles:
//	  base_url: "https://profiles.example.com"
//	  cache_ttl: "5m"
//
// Message pipeline timing:
//
//	chat:
//	  send_timeout: "15s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load("/etc/chatd/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
