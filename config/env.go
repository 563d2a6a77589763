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

package config

import (
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR} or ${VAR:default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} or ${VAR:default} with environment
// variable values.
func SubstituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// substituteEnvVarsInConfig recursively substitutes environment variables
// across every string field a deployment is likely to template.
func substituteEnvVarsInConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Client != nil {
		cfg.Client.DocumentID = SubstituteEnvVars(cfg.Client.DocumentID)
		cfg.Client.WebsocketHost = SubstituteEnvVars(cfg.Client.WebsocketHost)
		cfg.Client.WebsocketSessionKey = SubstituteEnvVars(cfg.Client.WebsocketSessionKey)
		cfg.Client.SigningPrivateKeyHex = SubstituteEnvVars(cfg.Client.SigningPrivateKeyHex)
	}
	if cfg.Server != nil && cfg.Server.Postgres != nil {
		cfg.Server.Postgres.Host = SubstituteEnvVars(cfg.Server.Postgres.Host)
		cfg.Server.Postgres.User = SubstituteEnvVars(cfg.Server.Postgres.User)
		cfg.Server.Postgres.Password = SubstituteEnvVars(cfg.Server.Postgres.Password)
		cfg.Server.Postgres.Database = SubstituteEnvVars(cfg.Server.Postgres.Database)
	}
	if cfg.Logging != nil {
		cfg.Logging.Level = SubstituteEnvVars(cfg.Logging.Level)
		cfg.Logging.Format = SubstituteEnvVars(cfg.Logging.Format)
		cfg.Logging.Output = SubstituteEnvVars(cfg.Logging.Output)
	}
}

// applyEnvironmentOverrides lets a handful of well-known environment
// variables win over whatever the YAML file says, for container
// deployments that inject secrets this way instead of templating them.
func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("SECSYNC_DOCUMENT_ID"); v != "" && cfg.Client != nil {
		cfg.Client.DocumentID = v
	}
	if v := os.Getenv("SECSYNC_WEBSOCKET_HOST"); v != "" && cfg.Client != nil {
		cfg.Client.WebsocketHost = v
	}
	if v := os.Getenv("SECSYNC_SIGNING_PRIVATE_KEY"); v != "" && cfg.Client != nil {
		cfg.Client.SigningPrivateKeyHex = v
	}
	if v := os.Getenv("SECSYNC_POSTGRES_PASSWORD"); v != "" && cfg.Server != nil && cfg.Server.Postgres != nil {
		cfg.Server.Postgres.Password = v
	}
	if v := os.Getenv("SECSYNC_LOG_LEVEL"); v != "" && cfg.Logging != nil {
		cfg.Logging.Level = v
	}
}

// GetEnvironment returns the current environment from SECSYNC_ENV or
// defaults to development.
func GetEnvironment() string {
	env := os.Getenv("SECSYNC_ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		env = "development"
	}
	return strings.ToLower(env)
}

// IsProduction returns true if running in the production environment.
func IsProduction() bool {
	return GetEnvironment() == "production"
}
