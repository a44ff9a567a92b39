package stack

import (
	"github.com/pressedge/pressedge/internal/core/labels"
)

// =============================================================================
// Stack Defaults
// =============================================================================

// Well-known names in the default stack.
const (
	ServiceEdge    = "edge"
	ServiceWeb     = "web"
	ServiceApp     = "app"
	ServiceDB      = "db"
	ServiceCache   = "cache"
	ServiceUpdater = "updater"

	NetworkFrontend = "frontend"
	NetworkBackend  = "backend"

	VolumeDBData    = "db_data"
	VolumeCacheData = "cache_data"
	VolumeContent   = "wp_content"
	VolumeCerts     = "certs"
	VolumeDBSocket  = "db_socket"
)

// Default values for the configurable knobs.
const (
	DefaultName       = "wordpress"
	DefaultHostname   = "wordpress.local"
	DefaultSubnet     = "10.5.0.0/24"
	DefaultGateway    = "10.5.0.1"
	DefaultWebAddress = "10.5.0.100"
	DefaultResolver   = "letsencrypt"

	DefaultEdgeImage    = "ghcr.io/pressedge/pressedge:latest"
	DefaultWebImage     = "nginx:1.27-alpine"
	DefaultAppImage     = "wordpress:6.7-php8.3-fpm-alpine"
	DefaultDBImage      = "mariadb:11.4"
	DefaultCacheImage   = "redis:7.4-alpine"
	DefaultUpdaterImage = "containrrr/watchtower:1.7.1"
)

// Params holds the configurable knobs of the default stack. Zero values are
// replaced by the defaults above, mirroring the environment-variable defaults
// of the descriptor.
type Params struct {
	Name     string
	Hostname string

	// Image pins
	EdgeImage    string
	WebImage     string
	AppImage     string
	DBImage      string
	CacheImage   string
	UpdaterImage string

	// Credentials
	DBName         string
	DBUser         string
	DBPassword     string
	DBRootPassword string

	// Debug enables verbose logging in the stack containers.
	Debug bool
}

func (p *Params) applyDefaults() {
	if p.Name == "" {
		p.Name = DefaultName
	}
	if p.Hostname == "" {
		p.Hostname = DefaultHostname
	}
	if p.EdgeImage == "" {
		p.EdgeImage = DefaultEdgeImage
	}
	if p.WebImage == "" {
		p.WebImage = DefaultWebImage
	}
	if p.AppImage == "" {
		p.AppImage = DefaultAppImage
	}
	if p.DBImage == "" {
		p.DBImage = DefaultDBImage
	}
	if p.CacheImage == "" {
		p.CacheImage = DefaultCacheImage
	}
	if p.UpdaterImage == "" {
		p.UpdaterImage = DefaultUpdaterImage
	}
	if p.DBName == "" {
		p.DBName = "wordpress"
	}
	if p.DBUser == "" {
		p.DBUser = "wordpress"
	}
	if p.DBPassword == "" {
		p.DBPassword = "wordpress"
	}
	if p.DBRootPassword == "" {
		p.DBRootPassword = "changeme"
	}
}

// DefaultStack builds the fixed six-service topology: edge proxy, web server,
// application runtime, database, cache and auto-update agent, wired over a
// frontend bridge (with a stable address for the web server) and an internal
// backend bridge.
//
// The returned stack passes Validate for any Params.
func DefaultStack(params Params) Stack {
	params.applyDefaults()

	debug := "0"
	if params.Debug {
		debug = "1"
	}

	webLabels := labels.GenerateLabels(labels.LabelParams{
		Router:    ServiceWeb,
		Hostname:  params.Hostname,
		Port:      80,
		EnableTLS: true,
		Resolver:  DefaultResolver,
	})

	return Stack{
		Name:     params.Name,
		Hostname: params.Hostname,
		Ingress:  ServiceEdge,
		Services: []Service{
			{
				Name:  ServiceEdge,
				Image: params.EdgeImage,
				Environment: map[string]string{
					"PRESSEDGE_ACME_DOMAINS": params.Hostname,
					"PRESSEDGE_LOG_LEVEL":    levelFor(params.Debug),
				},
				Ports: []Port{
					{Target: 80, Published: 80, Protocol: "tcp"},
					{Target: 443, Published: 443, Protocol: "tcp"},
					{Target: 8080, Published: 8080, Protocol: "tcp"},
				},
				Volumes: []VolumeMount{
					{Source: VolumeCerts, Target: "/var/lib/pressedge/certs"},
					{Source: "/var/run/docker.sock", Target: "/var/run/docker.sock", ReadOnly: true},
				},
				Networks: map[string]ServiceNetwork{
					NetworkFrontend: {},
				},
				Restart: RestartAlways,
				HealthCheck: &HealthCheck{
					Test:     []string{"CMD", "wget", "-q", "--spider", "http://localhost:8080/health"},
					Interval: "30s",
					Timeout:  "5s",
					Retries:  3,
				},
			},
			{
				Name:   ServiceWeb,
				Image:  params.WebImage,
				Labels: webLabels,
				Environment: map[string]string{
					"NGINX_HOST": params.Hostname,
				},
				Volumes: []VolumeMount{
					{Source: VolumeContent, Target: "/var/www/html", ReadOnly: true},
				},
				Networks: map[string]ServiceNetwork{
					NetworkFrontend: {IPv4Address: DefaultWebAddress},
					NetworkBackend:  {},
				},
				DependsOn: map[string]Condition{
					ServiceApp: ConditionStarted,
				},
				Restart: RestartAlways,
			},
			{
				Name:  ServiceApp,
				Image: params.AppImage,
				Environment: map[string]string{
					"WORDPRESS_DB_HOST":     "localhost:/run/mysqld/mysqld.sock",
					"WORDPRESS_DB_NAME":     params.DBName,
					"WORDPRESS_DB_USER":     params.DBUser,
					"WORDPRESS_DB_PASSWORD": params.DBPassword,
					"WORDPRESS_DEBUG":       debug,
					"WORDPRESS_CONFIG_EXTRA": "define('WP_REDIS_HOST', '" + ServiceCache + "');" +
						" define('WP_HOME', 'https://" + params.Hostname + "');",
				},
				Volumes: []VolumeMount{
					{Source: VolumeContent, Target: "/var/www/html"},
					{Source: VolumeDBSocket, Target: "/run/mysqld", ReadOnly: true},
				},
				Networks: map[string]ServiceNetwork{
					NetworkBackend: {},
				},
				DependsOn: map[string]Condition{
					ServiceDB:    ConditionHealthy,
					ServiceCache: ConditionStarted,
				},
				Restart: RestartAlways,
			},
			{
				Name:  ServiceDB,
				Image: params.DBImage,
				Environment: map[string]string{
					"MARIADB_DATABASE":      params.DBName,
					"MARIADB_USER":          params.DBUser,
					"MARIADB_PASSWORD":      params.DBPassword,
					"MARIADB_ROOT_PASSWORD": params.DBRootPassword,
				},
				Volumes: []VolumeMount{
					{Source: VolumeDBData, Target: "/var/lib/mysql"},
					{Source: VolumeDBSocket, Target: "/run/mysqld"},
				},
				Networks: map[string]ServiceNetwork{
					NetworkBackend: {},
				},
				Restart: RestartAlways,
				HealthCheck: &HealthCheck{
					Test:        []string{"CMD", "healthcheck.sh", "--connect", "--innodb_initialized"},
					Interval:    "10s",
					Timeout:     "5s",
					Retries:     5,
					StartPeriod: "30s",
				},
			},
			{
				Name:  ServiceCache,
				Image: params.CacheImage,
				Command: []string{
					"redis-server", "--appendonly", "yes",
				},
				Volumes: []VolumeMount{
					{Source: VolumeCacheData, Target: "/data"},
				},
				Networks: map[string]ServiceNetwork{
					NetworkBackend: {},
				},
				Restart: RestartAlways,
				HealthCheck: &HealthCheck{
					Test:     []string{"CMD", "redis-cli", "ping"},
					Interval: "10s",
					Timeout:  "3s",
					Retries:  3,
				},
			},
			{
				Name:  ServiceUpdater,
				Image: params.UpdaterImage,
				Environment: map[string]string{
					"WATCHTOWER_CLEANUP":       "true",
					"WATCHTOWER_POLL_INTERVAL": "86400",
				},
				Volumes: []VolumeMount{
					{Source: "/var/run/docker.sock", Target: "/var/run/docker.sock"},
				},
				Networks: map[string]ServiceNetwork{
					NetworkBackend: {},
				},
				Restart: RestartAlways,
			},
		},
		Networks: []Network{
			{Name: NetworkFrontend, Driver: "bridge", Subnet: DefaultSubnet, Gateway: DefaultGateway},
			{Name: NetworkBackend, Driver: "bridge", Internal: true},
		},
		Volumes: []Volume{
			{Name: VolumeDBData},
			{Name: VolumeCacheData},
			{Name: VolumeContent},
			{Name: VolumeCerts},
			{Name: VolumeDBSocket},
		},
	}
}

func levelFor(debug bool) string {
	if debug {
		return "debug"
	}
	return "info"
}
