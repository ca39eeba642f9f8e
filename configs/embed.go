// Package configs provides the embedded configuration templates for rowbulk.
//
// The templates are used by:
//   - `rowbulk config init` to create ~/.config/rowbulk/config.yaml
//   - `rowbulk config init --project` to create .rowbulk.yaml
//
// Configuration hierarchy (see internal/config Load()):
//  1. Defaults (internal/config NewConfig())
//  2. User config (~/.config/rowbulk/config.yaml)
//  3. Project config (.rowbulk.yaml)
//  4. Environment variables (ROWBULK_*)
//  5. Command-line flags
package configs

import _ "embed"

// UserConfigTemplate holds machine-level settings shared by every build on
// this machine: backend endpoint and credentials, bulk tuning, logging.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate holds the settings of one build: which table to read
// and which index to write.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
