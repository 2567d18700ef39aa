package gcp

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

type DocumentStorageMode string

const (
	DocumentStorageModeLocal       DocumentStorageMode = "local"
	DocumentStorageModeGCS         DocumentStorageMode = "gcs"
	DocumentStorageModeGCSEmulator DocumentStorageMode = "gcs_emulator"
)

type DocumentStorageConfig struct {
	Mode                  DocumentStorageMode
	EmulatorHost          string
	CompatibilityFallback bool
}

func IsSupportedDocumentStorageMode(mode DocumentStorageMode) bool {
	switch mode {
	case DocumentStorageModeLocal, DocumentStorageModeGCS, DocumentStorageModeGCSEmulator:
		return true
	default:
		return false
	}
}

func IsEmulatorDocumentStorageMode(mode DocumentStorageMode) bool {
	return mode == DocumentStorageModeGCSEmulator
}

func (cfg DocumentStorageConfig) IsEmulatorMode() bool {
	return IsEmulatorDocumentStorageMode(cfg.Mode)
}

func (cfg DocumentStorageConfig) ModeSource() string {
	if cfg.CompatibilityFallback {
		return "compatibility_fallback"
	}
	return "explicit_or_default"
}

type DocumentStorageConfigErrorCode string

const (
	DocumentStorageConfigErrorInvalidMode         DocumentStorageConfigErrorCode = "invalid_mode"
	DocumentStorageConfigErrorMissingEmulatorHost DocumentStorageConfigErrorCode = "missing_emulator_host"
	DocumentStorageConfigErrorInvalidEmulatorHost DocumentStorageConfigErrorCode = "invalid_emulator_host"
)

type DocumentStorageConfigError struct {
	Code         DocumentStorageConfigErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *DocumentStorageConfigError) Error() string {
	if e == nil {
		return "invalid document storage config"
	}
	switch e.Code {
	case DocumentStorageConfigErrorInvalidMode:
		return fmt.Sprintf(
			"invalid STORAGE_MODE=%q (allowed: %q, %q, %q)",
			e.Mode,
			DocumentStorageModeLocal,
			DocumentStorageModeGCS,
			DocumentStorageModeGCSEmulator,
		)
	case DocumentStorageConfigErrorMissingEmulatorHost:
		return fmt.Sprintf(
			"STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST to be set",
			DocumentStorageModeGCSEmulator,
		)
	case DocumentStorageConfigErrorInvalidEmulatorHost:
		return fmt.Sprintf(
			"invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443",
			e.EmulatorHost,
		)
	default:
		return "invalid document storage config"
	}
}

func (e *DocumentStorageConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ResolveDocumentStorageConfigFromEnv decides where uploaded source files
// are archived. Default is local disk so the service runs with zero cloud
// configuration; STORAGE_EMULATOR_HOST alone implies the emulator for
// docker-compose setups that predate STORAGE_MODE.
func ResolveDocumentStorageConfigFromEnv() (DocumentStorageConfig, error) {
	cfg := DocumentStorageConfig{
		EmulatorHost: strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")),
	}

	rawMode := strings.TrimSpace(os.Getenv("STORAGE_MODE"))
	mode := DocumentStorageMode(strings.ToLower(rawMode))

	switch mode {
	case "":
		if cfg.EmulatorHost != "" {
			cfg.Mode = DocumentStorageModeGCSEmulator
			cfg.CompatibilityFallback = true
		} else {
			cfg.Mode = DocumentStorageModeLocal
		}
	case DocumentStorageModeLocal:
		cfg.Mode = DocumentStorageModeLocal
	case DocumentStorageModeGCS:
		cfg.Mode = DocumentStorageModeGCS
	case DocumentStorageModeGCSEmulator:
		cfg.Mode = DocumentStorageModeGCSEmulator
	default:
		return cfg, &DocumentStorageConfigError{
			Code: DocumentStorageConfigErrorInvalidMode,
			Mode: rawMode,
		}
	}

	if err := ValidateDocumentStorageConfig(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func ValidateDocumentStorageConfig(cfg DocumentStorageConfig) error {
	if !IsSupportedDocumentStorageMode(cfg.Mode) {
		return &DocumentStorageConfigError{
			Code: DocumentStorageConfigErrorInvalidMode,
			Mode: string(cfg.Mode),
		}
	}
	if !cfg.IsEmulatorMode() {
		return nil
	}

	if cfg.EmulatorHost == "" {
		return &DocumentStorageConfigError{
			Code: DocumentStorageConfigErrorMissingEmulatorHost,
			Mode: string(cfg.Mode),
		}
	}
	u, err := url.Parse(cfg.EmulatorHost)
	if err != nil || strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
		return &DocumentStorageConfigError{
			Code:         DocumentStorageConfigErrorInvalidEmulatorHost,
			Mode:         string(cfg.Mode),
			EmulatorHost: cfg.EmulatorHost,
			Cause:        err,
		}
	}

	return nil
}
