// Package config handles configuration loading for coven-assistant.
//
// # Overview
//
// Configuration is a single TOML file with environment variable expansion,
// applied on top of Defaults and checked by Validate.
//
// # Configuration File
//
// Location (first match wins):
//
//  1. Path from COVEN_ASSISTANT_CONFIG
//  2. $XDG_CONFIG_HOME/coven/assistant.toml
//  3. ~/.config/coven/assistant.toml
//
// # Example
//
//	[assistant]
//	api_key = "${OPENAI_API_KEY}"
//	assistant_id = "asst_abc123"
//	poll_interval = "2s"
//	max_poll_attempts = 30
//	request_timeout = "30s"
//
//	[matrix]
//	homeserver = "https://matrix.example.org"
//	username = "english-bot"
//	password = "${MATRIX_PASSWORD}"
//	recovery_key = "${MATRIX_RECOVERY_KEY}"
//
//	[bridge]
//	allowed_rooms = ["!practice:example.org"]
//	command_prefix = "!"
//	typing_indicator = true
//
//	[status]
//	enabled = true
//	addr = "127.0.0.1:8089"
//	jwt_secret = "${COVEN_STATUS_SECRET}"
//
//	[database]
//	path = "/var/lib/coven/assistant.db"
//
//	[logging]
//	level = "info"
//	format = "text"
//
// # Environment Variable Expansion
//
// ${VAR_NAME} anywhere in the file is replaced by the variable's value, or
// by the empty string when it is unset. When assistant.api_key or
// assistant.assistant_id is empty after expansion, OPENAI_API_KEY and
// ASSISTANT_ID are used.
//
// # Duration Parsing
//
// request_timeout and poll_interval use time.ParseDuration syntax ("2s",
// "500ms"). They are decoded as strings and parsed after expansion.
//
// # Validation
//
// Missing credentials for the assistants service or Matrix are errors.
// Callers treat any Load error as fatal at startup.
package config
