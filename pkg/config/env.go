package config

import (
	"os"
	"strconv"
)

// envPrefix namespaces every environment override this package recognizes.
const envPrefix = "LLMPROXIFIER_"

// ApplyEnvOverrides overlays the scalar proxy settings named in §6 with
// values from the environment, when present. Model definitions are never
// overridden from the environment; they come only from the YAML document.
func ApplyEnvOverrides(cfg *Config) {
	if v, ok := lookupEnv("HOST"); ok {
		cfg.Proxy.Host = v
	}
	if v, ok := lookupEnvInt("PORT"); ok {
		cfg.Proxy.Port = v
	}
	if v, ok := lookupEnvInt("TIMEOUT_MINUTES"); ok {
		cfg.Proxy.IdleTimeoutMinutes = v
	}
	if v, ok := lookupEnvInt("MAX_CONCURRENT_MODELS"); ok {
		cfg.Proxy.MaxConcurrentModels = v
	}
	if v, ok := lookupEnvInt("HEALTH_CHECK_INTERVAL"); ok {
		cfg.Proxy.HealthCheckIntervalSeconds = v
	}
}

func lookupEnv(suffix string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + suffix)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func lookupEnvInt(suffix string) (int, bool) {
	v, ok := lookupEnv(suffix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
