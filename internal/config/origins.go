package config

import "os"

// GetAllowedOriginsFromEnv reads a comma-separated list of CORS origins
// from envVarName, falling back to defaultOrigins when unset or empty.
func GetAllowedOriginsFromEnv(envVarName string, defaultOrigins []string) []string {
	raw := os.Getenv(envVarName)
	if raw == "" {
		return defaultOrigins
	}
	return splitCSV(raw)
}
