// Section re-exports.
//
// DESIGN: Source, notifier and server settings are defined by the packages
// that consume them. This file re-exports those types for use by the main
// Config struct.
package config

import (
	"github.com/compresr/pool-watcher/internal/notify"
	"github.com/compresr/pool-watcher/internal/server"
	"github.com/compresr/pool-watcher/internal/tail"
)

// =============================================================================
// RE-EXPORTS
// =============================================================================

// SourceConfig is an alias for tail.Config.
type SourceConfig = tail.Config

// NotifierConfig is an alias for notify.Config.
type NotifierConfig = notify.Config

// SigV4Config is an alias for notify.SigV4Config.
type SigV4Config = notify.SigV4Config

// ServerConfig is an alias for server.Config.
type ServerConfig = server.Config
