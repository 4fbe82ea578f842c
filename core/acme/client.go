package acme

import (
	"crypto"

	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"
)

// acmeClient is the subset of the lego client the package uses. The
// indirection keeps certificate tests away from real ACME endpoints.
type acmeClient interface {
	Register(options registration.RegisterOptions) (*registration.Resource, error)
	SetHTTP01Provider(provider challenge.Provider) error
	Obtain(request certificate.ObtainRequest) (*certificate.Resource, error)
}

type clientFactory func(*lego.Config) (acmeClient, error)

func defaultClientFactory(cfg *lego.Config) (acmeClient, error) {
	client, err := lego.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &legoClientAdapter{client: client}, nil
}

type legoClientAdapter struct {
	client *lego.Client
}

func (l *legoClientAdapter) Register(options registration.RegisterOptions) (*registration.Resource, error) {
	return l.client.Registration.Register(options)
}

func (l *legoClientAdapter) SetHTTP01Provider(provider challenge.Provider) error {
	return l.client.Challenge.SetHTTP01Provider(provider)
}

func (l *legoClientAdapter) Obtain(request certificate.ObtainRequest) (*certificate.Resource, error) {
	return l.client.Certificate.Obtain(request)
}

type accountUser struct {
	email        string
	registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *accountUser) GetEmail() string                        { return u.email }
func (u *accountUser) GetRegistration() *registration.Resource { return u.registration }
func (u *accountUser) GetPrivateKey() crypto.PrivateKey        { return u.key }
