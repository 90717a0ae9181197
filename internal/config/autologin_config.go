package config

import "time"

type AutologinConfig interface {
	GetAutologinTTL() time.Duration
	GetAutologinFallbackSecret() string
	GetTokenDBPath() string
}

type Autologin struct{}

var _ AutologinConfig = Autologin{}

// GetAutologinTTL returns the fixed lifetime of an autologin token.
func (Autologin) GetAutologinTTL() time.Duration {
	if ttl, err := time.ParseDuration(GetEnv("AUTOLOGIN_TTL", "")); err == nil && ttl > 0 {
		return ttl
	}
	return 7 * 24 * time.Hour
}

// GetAutologinFallbackSecret returns the HMAC key for the signed
// fallback token format. Empty disables the fallback path entirely.
func (Autologin) GetAutologinFallbackSecret() string {
	return GetEnv("AUTOLOGIN_FALLBACK_SECRET", "")
}

func (Autologin) GetTokenDBPath() string {
	return GetEnv("TOKEN_DB_PATH", "./data/autologin.db")
}
