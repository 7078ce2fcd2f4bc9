// lcpcheck validates a local .lcpl license file and reports whether the
// publication it protects can be opened on this device.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/paperbound/lcp-client/internal/crl"
	"github.com/paperbound/lcp-client/internal/device"
	"github.com/paperbound/lcp-client/internal/drm"
	"github.com/paperbound/lcp-client/internal/license"
	"github.com/paperbound/lcp-client/internal/network"
	"github.com/paperbound/lcp-client/internal/passphrase"
	"github.com/paperbound/lcp-client/internal/repository"
	"github.com/paperbound/lcp-client/internal/validation"
	"github.com/paperbound/lcp-client/pkg/config"
	"github.com/paperbound/lcp-client/pkg/logger"
	"github.com/paperbound/lcp-client/pkg/metrics"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "lcpcheck"})

	if err := godotenv.Load(); err != nil {
		logg.Debug(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "lcpcheck",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	rewrite := flag.Bool("rewrite", true, "write refreshed license bytes back to the input file")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: lcpcheck [-rewrite=false] <license.lcpl>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		logg.Error(context.Background(), "failed to read license file", err)
		os.Exit(1)
	}

	repo, err := repository.New(cfg.DB)
	if err != nil {
		logg.Error(context.Background(), "failed to open local store", err)
		os.Exit(1)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logg.Error(context.Background(), "error closing local store", err)
		}
	}()

	fetcher := network.New(cfg.HTTP)

	var shared crl.SharedCache
	if cfg.Redis.URL != "" {
		cache, err := crl.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			logg.Warn(context.Background(), "redis unavailable, using the in-memory crl cache only")
		} else {
			shared = cache
		}
	}
	crlService := crl.New(cfg.CRL, fetcher, shared, logg)

	crypto := drm.NewSoftCrypto(logg)
	passphrases := passphrase.NewService(repo, crypto, logg)
	devices := device.NewService(cfg.Device, cfg.HTTP, repo, logg)

	validator, err := validation.New(validation.Params{
		Network:       fetcher,
		CRL:           crlService,
		Passphrases:   passphrases,
		Devices:       devices,
		Crypto:        crypto,
		Repository:    repo,
		Authenticator: &stdinAuthenticator{in: bufio.NewReader(os.Stdin)},
		OnLicenseValidated: func(doc *license.Document) error {
			if !*rewrite {
				return nil
			}
			return os.WriteFile(path, doc.Raw(), 0o644)
		},
		Logger:  logg,
		Metrics: metrics.NewValidationMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build validator", err)
		os.Exit(1)
	}

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"file":       path,
		"production": validator.Production(),
	})
	logg.Info(ctx, "validating license")

	exitCode := 0
	validator.Validate(ctx, validation.LicenseSeed(data), func(documents *validation.ValidatedDocuments, err error) {
		switch {
		case err != nil:
			fmt.Fprintf(os.Stderr, "validation failed: %v\n", err)
			exitCode = 1
		case documents == nil:
			fmt.Println("cancelled")
			exitCode = 3
		case documents.Usable():
			fmt.Printf("valid: license %s from %s\n", documents.License.UUID, documents.License.Provider)
		default:
			fmt.Printf("not usable: %v\n", documents.StatusError())
			exitCode = 4
		}
	})
	os.Exit(exitCode)
}

// stdinAuthenticator prompts on the terminal. Reads run on the caller's
// goroutine; an EOF or blank line cancels.
type stdinAuthenticator struct {
	in *bufio.Reader
}

func (a *stdinAuthenticator) RequestPassphrase(ctx context.Context, hint passphrase.Hint) (string, error) {
	if hint.TextHint != "" {
		fmt.Printf("hint: %s\n", hint.TextHint)
	}
	if hint.HintHref != "" {
		fmt.Printf("more help: %s\n", hint.HintHref)
	}
	fmt.Printf("passphrase for %s: ", hint.Provider)
	line, err := a.in.ReadString('\n')
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(line), nil
}
