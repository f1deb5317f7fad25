// Package config provides configuration loading, merging, and path management for the runtime.
//
// # Configuration Loading
//
// Load reads configuration from these sources, later ones overriding earlier ones:
//
//  1. Global config: loom.json, then loom.jsonc, in the XDG config directory
//     (~/.config/loom/)
//  2. Project config: <directory>/.loom/loom.json, then loom.jsonc
//  3. Environment variables
//
// Only the given directory is searched for a project config; parent directories
// are not. A file that is missing or fails to parse is skipped without an error.
//
// # Supported Formats
//
// The package supports both JSON and JSONC (JSON with Comments) formats:
//   - loom.json - Standard JSON configuration
//   - loom.jsonc - JSON with comments, processed using tidwall/jsonc
//
// Both files are passed through the same comment stripping. Values are used as
// written: placeholders such as {env:VAR} or {file:path} are not expanded.
//
// # Configuration Merging
//
// Each loaded file is merged into the result field by field:
//   - Model and SmallModel are overwritten when the file sets them
//   - Provider and Agent maps are combined by key; an entry in a later file
//     replaces the whole entry with the same key
//   - LSP, Watcher and Experimental are replaced as a whole when present
//
// The other fields of types.Config (Schema, Username, Instructions, Command,
// Permission, MCP and the rest) are not copied from the files.
//
// # Path Management
//
// The package provides XDG Base Directory Specification compliant path management
// through the Paths type:
//   - Data: ~/.local/share/loom (XDG_DATA_HOME)
//   - Config: ~/.config/loom (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/loom (XDG_CACHE_HOME)
//   - State: ~/.local/state/loom (XDG_STATE_HOME)
//
// On Windows, these paths are adapted to use APPDATA as appropriate.
//
// # Environment Variable Overrides
//
// Several environment variables provide direct configuration overrides:
//   - OPENCODE_MODEL - Override the default model
//   - OPENCODE_SMALL_MODEL - Override the small model
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY, AWS_ACCESS_KEY_ID -
//     set the APIKey of the anthropic, openai, google and bedrock provider
//     entries when the files left it empty
//
// # Usage Example
//
//	// Load configuration from the current directory
//	config, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Get standard paths
//	paths := config.GetPaths()
//	err = paths.EnsurePaths() // Create directories if they don't exist
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Save configuration
//	err = config.Save(config, config.GlobalConfigPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
package config