// Package acme issues and renews TLS certificates through an ACME
// directory using the HTTP-01 webroot challenge. Certificate material is
// installed into a certstore.Store; this package is the only component
// that writes it.
package acme

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/providers/http/webroot"
	"github.com/go-acme/lego/v4/registration"

	"github.com/dmitrymomot/proxyguard/core/certstore"
	"github.com/dmitrymomot/proxyguard/core/domainset"
	"github.com/dmitrymomot/proxyguard/core/logger"
)

// Config holds ACME configuration with environment variable support.
type Config struct {
	// Email is the contact address for the ACME account. Required for
	// issuance; renewal of already-installed certificates also uses it.
	Email string `env:"SSL_EMAIL" envDefault:""`

	// DirectoryURL points at the ACME directory. Override for staging.
	DirectoryURL string `env:"ACME_DIRECTORY_URL" envDefault:"https://acme-v02.api.letsencrypt.org/directory"`

	// Webroot is the directory the proxy serves /.well-known/acme-challenge/ from.
	Webroot string `env:"ACME_WEBROOT" envDefault:"/var/www/certbot"`

	// RenewWindow is how close to expiry a certificate must be before the
	// renewer re-obtains it. 720h matches the conventional 30 days.
	RenewWindow time.Duration `env:"RENEW_WINDOW" envDefault:"720h"`
}

// Issuer obtains certificates from the ACME directory and installs them.
type Issuer struct {
	cfg   Config
	store *certstore.Store
	log   *slog.Logger

	clientFactory   clientFactory
	accountKeyMaker func() (crypto.PrivateKey, error)
}

// NewIssuer creates an Issuer backed by the given store.
func NewIssuer(cfg Config, store *certstore.Store, log *slog.Logger) *Issuer {
	return &Issuer{
		cfg:           cfg,
		store:         store,
		log:           log.With(logger.Component("acme")),
		clientFactory: defaultClientFactory,
		accountKeyMaker: func() (crypto.PrivateKey, error) {
			return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		},
	}
}

// Issue obtains a fresh certificate covering every domain in the set as
// Subject Alternative Names and installs it under the primary domain.
// The certificate is always requested anew, also when one already exists.
func (i *Issuer) Issue(ctx context.Context, domains domainset.Set) (*certstore.CertificateRef, error) {
	if domains.Empty() {
		return nil, domainset.ErrNoDomains
	}
	if i.cfg.Email == "" {
		return nil, ErrEmailRequired
	}

	start := time.Now()
	i.log.Info("requesting certificate",
		logger.Domain(domains.Primary()),
		slog.Int("domains", len(domains)))

	ref, err := i.obtain(ctx, domains)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIssuanceFailed, err)
	}

	i.log.Info("certificate installed",
		logger.Domain(ref.Primary),
		logger.Path(ref.CertFile),
		logger.Elapsed(start))
	return ref, nil
}

// obtain runs the full ACME flow for the domain set: account key,
// registration, webroot HTTP-01 challenge, obtain and install.
func (i *Issuer) obtain(ctx context.Context, domains domainset.Set) (*certstore.CertificateRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	accountKey, err := i.accountKeyMaker()
	if err != nil {
		return nil, fmt.Errorf("generate account key: %w", err)
	}

	user := &accountUser{email: i.cfg.Email, key: accountKey}

	legoCfg := lego.NewConfig(user)
	legoCfg.CADirURL = i.cfg.DirectoryURL
	legoCfg.Certificate.KeyType = certcrypto.RSA2048

	client, err := i.clientFactory(legoCfg)
	if err != nil {
		return nil, fmt.Errorf("create acme client: %w", err)
	}

	provider, err := webroot.NewHTTPProvider(i.cfg.Webroot)
	if err != nil {
		return nil, fmt.Errorf("configure webroot provider: %w", err)
	}
	if err := client.SetHTTP01Provider(provider); err != nil {
		return nil, fmt.Errorf("configure http-01 provider: %w", err)
	}

	reg, err := client.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, fmt.Errorf("register account: %w", err)
	}
	user.registration = reg

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	certRes, err := client.Obtain(certificate.ObtainRequest{
		Domains: domains,
		Bundle:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("obtain certificate: %w", err)
	}

	if len(certRes.Certificate) == 0 || len(certRes.PrivateKey) == 0 {
		return nil, ErrEmptyResponse
	}

	ref, err := i.store.Install(domains.Primary(), certRes.Certificate, certRes.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("install certificate: %w", err)
	}
	return ref, nil
}
