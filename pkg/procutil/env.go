package procutil

import (
	"os"
	"strings"
	"time"
)

// EnvVar names an environment variable.
type EnvVar string

// LookupBoolEnv reports the boolean value of the variable, or defaultValue
// if it is unset or not a recognized boolean.
func LookupBoolEnv(name EnvVar, defaultValue bool) bool {
	if val, ok := os.LookupEnv(string(name)); ok {
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

// LookupDurationEnv parses the variable as a time.Duration, or returns
// defaultValue if it is unset or malformed.
func LookupDurationEnv(name EnvVar, defaultValue time.Duration) time.Duration {
	if val, ok := os.LookupEnv(string(name)); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultValue
}

func LookupEnv(name EnvVar) (string, bool) {
	return os.LookupEnv(string(name))
}
