// Package config loads grantha's startup configuration.
//
// Configuration lives in a small TOML file, ~/.config/grantha/config.toml
// by default:
//
//	api_url = "http://127.0.0.1:8000"
//	poll_seconds = 2
//	qa_count = 2
//	log_path = "~/.local/share/grantha/grantha.log"
//
// Every field is optional. A missing config file is not an error; grantha
// works out of the box against a backend on the default port. Tilde paths
// are expanded to the user's home directory.
package config
