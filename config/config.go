// Package config carries the handful of process-wide knobs this core
// needs (spec.md §9, "Global idempotency TTL"); everything else is
// per-call payload data, not process configuration. Uses viper, the
// teacher's own config library (cmd/bd/config.go), with the env-prefix +
// defaults pattern instead of the teacher's CLI-flag/store-backed one,
// since this package has no CLI and no store of its own.
package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "SNUGOM"

	keyIdempotencyTTL     = "idempotency_ttl_seconds"
	keyKeyPrefix          = "key_prefix"
	keyStrictVersionGuard = "strict_version_conflict"
)

// Config holds the resolved process-wide defaults.
type Config struct {
	// IdempotencyTTL is the default TTL applied to an idempotency slot
	// when a call does not specify one explicitly. Zero means never
	// expire; this is distinct from "unset" (DESIGN NOTES, "Global
	// idempotency TTL").
	IdempotencyTTL time.Duration

	// KeyPrefix seeds keys.NewSchema for callers that want it sourced
	// from the environment rather than constructed in code.
	KeyPrefix string

	// StrictVersionConflict is the process-wide default for
	// PatchEntityPayload.StrictVersionConflict (spec.md §9 Open Question,
	// resolved in SPEC_FULL.md §9). Per-call payloads may still override it.
	StrictVersionConflict bool
}

// Load resolves Config from the environment (SNUGOM_*) over built-in
// defaults. It never reads a config file; this core has no on-disk
// configuration surface of its own.
func Load() Config {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault(keyIdempotencyTTL, 900)
	v.SetDefault(keyKeyPrefix, "snugom")
	v.SetDefault(keyStrictVersionGuard, false)

	return Config{
		IdempotencyTTL:        time.Duration(v.GetInt(keyIdempotencyTTL)) * time.Second,
		KeyPrefix:             v.GetString(keyKeyPrefix),
		StrictVersionConflict: v.GetBool(keyStrictVersionGuard),
	}
}
