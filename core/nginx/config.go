package nginx

import "time"

// Config holds nginx integration configuration with environment variable support.
type Config struct {
	// Bin is the nginx binary used for the child process and syntax checks.
	Bin string `env:"NGINX_BIN" envDefault:"nginx"`

	// ConfDir is where the generated fragments are written. The main
	// nginx configuration includes both fragment files from here.
	ConfDir string `env:"NGINX_CONF_DIR" envDefault:"/etc/nginx/conf.d"`

	// PIDFile is the master process pid marker. Its existence signals
	// readiness; its content is the reload/termination signal target.
	PIDFile string `env:"NGINX_PID_FILE" envDefault:"/run/nginx.pid"`

	// UpstreamAddr is the backend every HTTPS location proxies to.
	UpstreamAddr string `env:"UPSTREAM_ADDR" envDefault:"127.0.0.1:8000"`

	// HealthPath is the backend health endpoint, proxied with logging suppressed.
	HealthPath string `env:"UPSTREAM_HEALTH_PATH" envDefault:"/health"`

	// ReadyTimeout bounds how long WaitReady polls for the pid marker.
	ReadyTimeout time.Duration `env:"READY_TIMEOUT" envDefault:"10s"`
}
