// Package nginx generates the TLS configuration fragments for the
// supervised nginx process and coordinates validated, zero-downtime
// reloads of it.
package nginx

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/dmitrymomot/proxyguard/core/certstore"
	"github.com/dmitrymomot/proxyguard/core/domainset"
)

const (
	redirectFileName = "ssl_redirect.conf"
	serverFileName   = "ssl_server.conf"
)

// Fragments holds the two rendered configuration artifacts. Rendering is
// pure: identical inputs always produce byte-identical fragments.
type Fragments struct {
	Redirect []byte
	Server   []byte
}

// Generator renders and writes the configuration fragments. It is the
// exclusive producer of both files; nginx consumes them read-only via
// include directives, which is why the files must always exist, as
// comment-only stubs when TLS is off.
type Generator struct {
	confDir  string
	upstream string
	health   string
}

// NewGenerator creates a Generator from nginx configuration.
func NewGenerator(cfg Config) *Generator {
	return &Generator{
		confDir:  cfg.ConfDir,
		upstream: cfg.UpstreamAddr,
		health:   cfg.HealthPath,
	}
}

// RedirectPath returns the redirect fragment's final path.
func (g *Generator) RedirectPath() string {
	return filepath.Join(g.confDir, redirectFileName)
}

// ServerPath returns the server fragment's final path.
func (g *Generator) ServerPath() string {
	return filepath.Join(g.confDir, serverFileName)
}

// Render produces both fragments for the given certificate state.
// A nil ref yields inert stubs regardless of the domain list.
func (g *Generator) Render(domains domainset.Set, ref *certstore.CertificateRef) Fragments {
	if ref == nil {
		return Fragments{
			Redirect: []byte(disabledRedirectStub),
			Server:   []byte(disabledServerStub),
		}
	}

	data := fragmentData{
		ServerNames: domains.ServerNames(),
		CertFile:    ref.CertFile,
		KeyFile:     ref.KeyFile,
		Upstream:    g.upstream,
		HealthPath:  g.health,
	}

	return Fragments{
		Redirect: renderTemplate(redirectTemplate, data),
		Server:   renderTemplate(serverTemplate, data),
	}
}

// Write writes both fragments to their final paths. Each file is fully
// rendered in memory and moved into place with a rename, so a concurrent
// reload never observes a partial fragment.
func (g *Generator) Write(f Fragments) error {
	if err := os.MkdirAll(g.confDir, 0o755); err != nil {
		return fmt.Errorf("create fragment directory: %w", err)
	}
	if err := writeFileAtomic(g.RedirectPath(), f.Redirect, 0o644); err != nil {
		return fmt.Errorf("write redirect fragment: %w", err)
	}
	if err := writeFileAtomic(g.ServerPath(), f.Server, 0o644); err != nil {
		return fmt.Errorf("write server fragment: %w", err)
	}
	return nil
}

type fragmentData struct {
	ServerNames string
	CertFile    string
	KeyFile     string
	Upstream    string
	HealthPath  string
}

func renderTemplate(t *template.Template, data fragmentData) []byte {
	var buf bytes.Buffer
	// Templates are static and the data struct is fixed, so execution
	// cannot fail at runtime.
	if err := t.Execute(&buf, data); err != nil {
		panic(fmt.Sprintf("render nginx fragment: %v", err))
	}
	return buf.Bytes()
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) // Best effort cleanup
		return err
	}
	return nil
}

const (
	disabledRedirectStub = "# ssl disabled: no certificate installed\n"
	disabledServerStub   = "# ssl disabled: no certificate installed\n"
)

// The redirect fragment is included inside the existing port-80 server
// block. nginx cannot nest locations inside if-blocks, so the carve-out
// for the ACME challenge prefix is expressed with a flag variable: every
// request redirects to HTTPS unless it targets the challenge path. The
// surrounding server's root location stays authoritative for whatever is
// not redirected.
var redirectTemplate = template.Must(template.New("redirect").Parse(
	`# managed by proxyguard; do not edit
set $redirect_to_https 1;
if ($request_uri ~ ^/\.well-known/acme-challenge/) {
    set $redirect_to_https 0;
}
if ($redirect_to_https = 1) {
    return 301 https://$host$request_uri;
}
`))

var serverTemplate = template.Must(template.New("server").Parse(
	`# managed by proxyguard; do not edit
server {
    listen 443 ssl;
    http2 on;
    server_name {{.ServerNames}};

    ssl_certificate {{.CertFile}};
    ssl_certificate_key {{.KeyFile}};
    ssl_protocols TLSv1.2 TLSv1.3;
    ssl_prefer_server_ciphers off;
    ssl_session_cache shared:SSL:10m;
    ssl_session_timeout 1d;

    add_header Strict-Transport-Security "max-age=31536000" always;

    location /api/ {
        proxy_pass http://{{.Upstream}};
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_connect_timeout 60s;
        proxy_send_timeout 60s;
        proxy_read_timeout 60s;
        proxy_buffering on;
    }

    location = {{.HealthPath}} {
        access_log off;
        proxy_pass http://{{.Upstream}};
        proxy_set_header Host $host;
        proxy_connect_timeout 60s;
        proxy_send_timeout 60s;
        proxy_read_timeout 60s;
        proxy_buffering on;
    }

    location / {
        proxy_pass http://{{.Upstream}};
        proxy_http_version 1.1;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_connect_timeout 60s;
        proxy_send_timeout 60s;
        proxy_read_timeout 60s;
        proxy_buffering on;
    }
}
`))
