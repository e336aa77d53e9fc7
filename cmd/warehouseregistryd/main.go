// Command warehouseregistryd runs the co-hosted Docker/Cargo
// Warehouse registry service described in spec.md: an OCI Distribution
// registry and a Cargo sparse-index crate registry sharing one
// listener, one bearer-token authority, and one request gatekeeper.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/warehouse-labs/registry"
	"github.com/warehouse-labs/registry/cratereg"
	"github.com/warehouse-labs/registry/internal/config"
	"github.com/warehouse-labs/registry/ociauth"
	"github.com/warehouse-labs/registry/ocifilter"
	"github.com/warehouse-labs/registry/ocifs"
	"github.com/warehouse-labs/registry/ocigate"
	"github.com/warehouse-labs/registry/ocigc"
	"github.com/warehouse-labs/registry/ociserver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "warehouseregistryd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("cannot initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("cannot load configuration: %v", err)
	}

	fsBackend, err := ocifs.NewRegistryWithConfig(cfg.DockerStorageRoot, &ocifs.Config{
		ImmutableTags: false,
	})
	if err != nil {
		return fmt.Errorf("cannot open docker storage root %q: %v", cfg.DockerStorageRoot, err)
	}
	var dockerBackend ociregistry.Interface = fsBackend
	if cfg.MaintenanceReadOnly {
		dockerBackend = ocifilter.ReadOnly(dockerBackend)
	}

	cratereg.MaxBodyBytes = cfg.MaxRequestBodyBytes
	crates := cratereg.NewRegistry(cfg.CratesStorageRoot, cfg.RegistryBaseURL)

	authority := ociauth.NewAuthority([]byte(cfg.TokenSecret), cfg.TokenService)

	gate := ocigate.New(ocigate.Config{
		Authority:       authority,
		Realm:           cfg.Realm,
		Service:         cfg.TokenService,
		MaxAuthFailures: cfg.MaxAuthFailuresPerMinute,
		FailureWindow:   cfg.AuthFailureWindow,
	})
	uploadLimiter := ocigate.NewUploadLimiter(cfg.MaxConcurrentUploads)

	cratesHandler := crates.Handler()

	var serverOpts *ociserver.Options
	if cfg.BlobRedirectEnabled && cfg.BlobRedirectBase != "" {
		base := strings.TrimSuffix(cfg.BlobRedirectBase, "/")
		serverOpts = &ociserver.Options{
			LocationsForDescriptor: func(isManifest bool, desc ociregistry.Descriptor) ([]string, error) {
				if isManifest {
					return nil, nil
				}
				return []string{base + "/" + string(desc.Digest)}, nil
			},
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/v2/", ociserver.New(dockerBackend, serverOpts))
	mux.Handle("/api/v1/crates/", cratesHandler)
	mux.Handle("/index/", cratesHandler)
	mux.HandleFunc("GET /token", ociauth.NewTokenHandler(ociauth.TokenHandlerConfig{
		Authority:        authority,
		AuthDisabled:     cfg.AuthDisabled(),
		AnonymousSubject: "anonymous",
		CheckCredentials: func(user, pass string) (string, bool) {
			if user == cfg.AdminUser && pass == cfg.AdminPassword {
				return user, true
			}
			return "", false
		},
	}))

	gc := &ocigc.Handler{DockerRoot: cfg.DockerStorageRoot, CratesRoot: cfg.CratesStorageRoot}
	gc.Routes(mux)

	handler := uploadLimiter.Wrap(gate.Wrap(mux))

	logger.Info("starting warehouse registry",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("docker_storage_root", cfg.DockerStorageRoot),
		zap.String("crates_storage_root", cfg.CratesStorageRoot),
		zap.Bool("tls_enabled", cfg.TLSEnabled()),
		zap.Bool("auth_disabled", cfg.AuthDisabled()),
		zap.Bool("maintenance_read_only", cfg.MaintenanceReadOnly),
		zap.Bool("blob_redirect_enabled", cfg.BlobRedirectEnabled),
	)

	if cfg.TLSEnabled() && cfg.RedirectAddr != "" {
		go func() {
			redirectErr := http.ListenAndServe(cfg.RedirectAddr, http.HandlerFunc(redirectToHTTPS))
			logger.Error("redirect listener stopped", zap.Error(redirectErr))
		}()
	}

	if cfg.TLSEnabled() {
		return http.ListenAndServeTLS(cfg.ListenAddr, cfg.TLSCertFile, cfg.TLSKeyFile, handler)
	}
	return http.ListenAndServe(cfg.ListenAddr, handler)
}

func redirectToHTTPS(resp http.ResponseWriter, req *http.Request) {
	target := "https://" + req.Host + req.URL.RequestURI()
	http.Redirect(resp, req, target, http.StatusMovedPermanently)
}
