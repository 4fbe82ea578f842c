package acme

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/proxyguard/core/certstore"
	"github.com/dmitrymomot/proxyguard/core/domainset"
	"github.com/dmitrymomot/proxyguard/core/logger"
)

// Outcome classifies the result of a renewal pass.
type Outcome string

const (
	// OutcomeNoneDue means no installed certificate needed renewal.
	OutcomeNoneDue Outcome = "none_due"

	// OutcomeRenewed means at least one certificate was renewed and the
	// caller must regenerate configuration and reload the proxy.
	OutcomeRenewed Outcome = "renewed"

	// OutcomeFailed means the pass hit an error. Non-fatal everywhere
	// except the one-shot renew command: the previous certificate keeps
	// serving and the next scheduled pass retries.
	OutcomeFailed Outcome = "failed"
)

// Renewer re-obtains installed certificates that approach expiry.
type Renewer struct {
	cfg   Config
	store *certstore.Store
	log   *slog.Logger

	// obtain is the issuance path shared with the Issuer; replaced in tests.
	obtain func(ctx context.Context, domains domainset.Set) (*certstore.CertificateRef, error)
}

// NewRenewer creates a Renewer that renews through the given Issuer.
func NewRenewer(cfg Config, store *certstore.Store, issuer *Issuer, log *slog.Logger) *Renewer {
	return &Renewer{
		cfg:    cfg,
		store:  store,
		log:    log.With(logger.Component("acme")),
		obtain: issuer.obtain,
	}
}

// Renew walks every installed certificate and re-obtains those whose
// expiry is within the renewal window, preserving each certificate's
// SAN list. Certificates far from expiry are left untouched.
func (r *Renewer) Renew(ctx context.Context) (Outcome, error) {
	primaries, err := r.store.List()
	if err != nil {
		return OutcomeFailed, err
	}
	if len(primaries) == 0 {
		r.log.Debug("no certificates installed, nothing to renew")
		return OutcomeNoneDue, nil
	}

	var (
		renewed int
		errs    []error
	)
	for _, primary := range primaries {
		due, domains, err := r.inspect(primary)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !due {
			continue
		}

		r.log.Info("renewing certificate", logger.Domain(primary))
		if _, err := r.obtain(ctx, domains); err != nil {
			errs = append(errs, fmt.Errorf("renew %s: %w", primary, err))
			continue
		}
		renewed++
	}

	switch {
	case len(errs) > 0:
		return OutcomeFailed, errors.Join(errs...)
	case renewed > 0:
		return OutcomeRenewed, nil
	default:
		return OutcomeNoneDue, nil
	}
}

// inspect reports whether the certificate for primary is due for renewal
// and returns the domain set to request, primary first.
func (r *Renewer) inspect(primary string) (bool, domainset.Set, error) {
	chain, err := r.store.ReadChain(primary)
	if err != nil {
		return false, nil, err
	}

	cert, err := parseLeafCertificate(chain)
	if err != nil {
		return false, nil, fmt.Errorf("parse certificate for %s: %w", primary, err)
	}

	remaining := time.Until(cert.NotAfter)
	if remaining > r.cfg.RenewWindow {
		r.log.Debug("certificate not due",
			logger.Domain(primary),
			slog.Duration("remaining", remaining))
		return false, nil, nil
	}

	domains := domainset.Set{primary}
	for _, name := range cert.DNSNames {
		if name != primary {
			domains = append(domains, name)
		}
	}
	return true, domains, nil
}

// parseLeafCertificate decodes the first CERTIFICATE block of a PEM chain.
func parseLeafCertificate(chain []byte) (*x509.Certificate, error) {
	for block, rest := pem.Decode(chain); block != nil; block, rest = pem.Decode(rest) {
		if block.Type != "CERTIFICATE" {
			continue
		}
		return x509.ParseCertificate(block.Bytes)
	}
	return nil, errors.New("no certificate block found")
}
