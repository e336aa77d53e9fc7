// Package config loads the Warehouse registry service's configuration
// from environment variables, per §6. Every variable is optional;
// absence falls back to the documented default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the service's full runtime configuration.
type Config struct {
	// ListenAddr is where the HTTPS (or, with no TLS files, plain
	// HTTP) listener binds.
	ListenAddr string
	// RedirectAddr, if non-empty and TLS is enabled, runs a second
	// plain-HTTP listener that redirects to HTTPS.
	RedirectAddr string

	// TLSCertFile and TLSKeyFile select TLS; both empty means plain
	// HTTP.
	TLSCertFile string
	TLSKeyFile  string

	// TokenSecret signs and verifies bearer tokens. TokenService is
	// the service name embedded in tokens and compared against the
	// "service" query parameter of both /token and the
	// WWW-Authenticate challenge. Realm is the base URL advertised in
	// that challenge.
	TokenSecret  string
	TokenService string
	Realm        string

	// AdminUser and AdminPassword gate the token endpoint's Basic
	// auth check; auth is disabled entirely (anonymous tokens issued
	// to anyone) when AdminUser is empty.
	AdminUser     string
	AdminPassword string

	MaxRequestBodyBytes  int64
	MaxConcurrentUploads int

	MaxAuthFailuresPerMinute int
	AuthFailureWindow        time.Duration

	DockerStorageRoot string
	CratesStorageRoot string

	// BlobRedirectEnabled/BlobRedirectBase implement spec §4.D's blob
	// redirect: when set, GET /<repo>/blobs/<digest> returns a 307 to
	// BlobRedirectBase+"/"+<digest> instead of streaming the blob body
	// itself.
	BlobRedirectEnabled bool
	BlobRedirectBase    string

	RegistryBaseURL string

	// MaintenanceReadOnly puts the Docker registry into read-only mode:
	// every mutating entry point (push, mount, delete) returns
	// "operation unsupported" while reads keep serving. Meant for
	// maintenance windows around a GC run.
	MaintenanceReadOnly bool
}

// Load reads the configuration from the environment, applying the
// defaults from §6.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:               getenv("LISTEN_ADDR", "0.0.0.0:443"),
		RedirectAddr:             getenv("HTTP_REDIRECT_ADDR", "0.0.0.0:80"),
		TLSCertFile:              os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:               os.Getenv("TLS_KEY_FILE"),
		TokenSecret:              os.Getenv("TOKEN_SECRET"),
		TokenService:             getenv("TOKEN_SERVICE", "warehouse-registry"),
		Realm:                    getenv("TOKEN_REALM", "https://localhost/token"),
		AdminUser:                os.Getenv("ADMIN_USER"),
		AdminPassword:            os.Getenv("ADMIN_PASSWORD"),
		MaxConcurrentUploads:     32,
		MaxAuthFailuresPerMinute: 30,
		AuthFailureWindow:        60 * time.Second,
		DockerStorageRoot:        getenv("DOCKER_STORAGE_ROOT", "/var/lib/warehouse/docker"),
		CratesStorageRoot:        getenv("CRATES_STORAGE_ROOT", "/var/lib/warehouse/crates"),
		BlobRedirectBase:         os.Getenv("BLOB_REDIRECT_BASE"),
		RegistryBaseURL:          getenv("REGISTRY_BASE_URL", "https://localhost"),
	}
	cfg.MaxRequestBodyBytes = 1 << 30

	var err error
	if cfg.MaxRequestBodyBytes, err = getenvInt64("MAX_REQUEST_BODY_BYTES", cfg.MaxRequestBodyBytes); err != nil {
		return Config{}, err
	}
	if cfg.MaxConcurrentUploads, err = getenvInt("MAX_CONCURRENT_UPLOADS", cfg.MaxConcurrentUploads); err != nil {
		return Config{}, err
	}
	if cfg.MaxAuthFailuresPerMinute, err = getenvInt("MAX_AUTH_FAILURES_PER_MINUTE", cfg.MaxAuthFailuresPerMinute); err != nil {
		return Config{}, err
	}
	windowSeconds, err := getenvInt("AUTH_FAILURE_WINDOW_SECONDS", int(cfg.AuthFailureWindow.Seconds()))
	if err != nil {
		return Config{}, err
	}
	cfg.AuthFailureWindow = time.Duration(windowSeconds) * time.Second
	if cfg.BlobRedirectEnabled, err = getenvBool("ENABLE_REDIRECT", false); err != nil {
		return Config{}, err
	}
	if cfg.MaintenanceReadOnly, err = getenvBool("MAINTENANCE_READ_ONLY", false); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// AuthDisabled reports whether the token endpoint should skip
// credential validation and issue anonymous tokens.
func (c Config) AuthDisabled() bool {
	return c.AdminUser == ""
}

// TLSEnabled reports whether both TLS file paths are configured.
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

func getenv(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

func getenvInt(name string, def int) (int, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", name, err)
	}
	return n, nil
}

func getenvInt64(name string, def int64) (int64, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", name, err)
	}
	return n, nil
}

func getenvBool(name string, def bool) (bool, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %v", name, err)
	}
	return b, nil
}
