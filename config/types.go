// secsync is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// secsync is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with secsync. If not, see <https://www.gnu.org/licenses/>.

// Package config provides configuration loading for both the secsync
// client actor and the server core.
package config

import "time"

// Config is the top-level configuration structure, loaded from YAML with
// environment variable overrides.
type Config struct {
	Environment string `yaml:"environment" json:"environment"`

	// Client holds the fields spec.md §6 lists as sync-context
	// configuration. nil when running as a server only.
	Client *ClientConfig `yaml:"client" json:"client"`

	// Server holds the store/transport options for the server core.
	// Unset when running as a client only.
	Server *ServerConfig `yaml:"server" json:"server"`

	Logging *LoggingConfig `yaml:"logging" json:"logging"`
	Metrics *MetricsConfig `yaml:"metrics" json:"metrics"`
	Health  *HealthConfig  `yaml:"health" json:"health"`
}

// ClientConfig is the fixed set of fields a secsync client needs to join a
// document's sync session (spec.md §6).
type ClientConfig struct {
	DocumentID           string `yaml:"document_id" json:"document_id"`
	WebsocketHost        string `yaml:"websocket_host" json:"websocket_host"`
	WebsocketSessionKey  string `yaml:"websocket_session_key" json:"websocket_session_key"`
	SigningPrivateKeyHex string `yaml:"signing_private_key" json:"signing_private_key"`

	// KnownSnapshotInfo lets a resuming client skip replaying updates it
	// has already applied (spec.md §6 "knownSnapshotInfo").
	KnownSnapshotInfo *KnownSnapshotInfo `yaml:"known_snapshot_info" json:"known_snapshot_info"`
}

// KnownSnapshotInfo is the client's last-known sync position.
type KnownSnapshotInfo struct {
	SnapshotID string `yaml:"snapshot_id" json:"snapshot_id"`
	Clock      int    `yaml:"clock" json:"clock"`
}

// ServerConfig configures the server core's store, transport and lenient
// document-creation behavior.
type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr" json:"listen_addr"`
	LenientMode bool   `yaml:"lenient_mode" json:"lenient_mode"`

	// StoreDriver selects the Store implementation: "memory" or "postgres".
	StoreDriver string          `yaml:"store_driver" json:"store_driver"`
	Postgres    *PostgresConfig `yaml:"postgres" json:"postgres"`
}

// PostgresConfig is the connection configuration for server/postgres.Store.
type PostgresConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`
	SSLMode  string `yaml:"ssl_mode" json:"ssl_mode"`
}

// LoggingConfig configures internal/logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Port    int  `yaml:"port" json:"port"`
}

// HealthConfig configures the health check HTTP endpoint.
type HealthConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Port    int           `yaml:"port" json:"port"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}
