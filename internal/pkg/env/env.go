package env

import (
	"os"

	"github.com/joho/godotenv"
)

var Env map[string]string

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok {
		return val
	}
	// Fallback to OS environment variables (for Docker/tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile loads the first .env file found. Deployments that inject
// variables directly (containers, PaaS) run without one, so a missing file is
// reported to the caller instead of aborting.
func SetupEnvFile() error {
	envFiles := []string{
		".env",          // Current directory
		"../../.env",    // From cmd/payfox to project root
		"../../../.env", // Fallback for deeper nesting
	}

	var err error
	for _, envFile := range envFiles {
		var loaded map[string]string
		loaded, err = godotenv.Read(envFile)
		if err == nil {
			Env = loaded
			return nil
		}
	}
	return err
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
