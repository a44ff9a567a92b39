package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pressedge/pressedge/internal/core/stack"
	"github.com/pressedge/pressedge/internal/shell/deployer"
	"github.com/pressedge/pressedge/internal/shell/docker"
	"github.com/pressedge/pressedge/internal/shell/store"
)

// =============================================================================
// Stack Flags
// =============================================================================

// stackFlags are the flags shared by commands that need a stack topology:
// either a descriptor file or the built-in default stack shaped by name,
// hostname and debug.
type stackFlags struct {
	file     string
	name     string
	hostname string
	debug    bool
}

func (f *stackFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.file, "f", "", "Compose descriptor file (default: built-in stack)")
	fs.StringVar(&f.name, "name", "", "Stack name (default: wordpress)")
	fs.StringVar(&f.hostname, "hostname", "", "Public hostname (default: wordpress.local)")
	fs.BoolVar(&f.debug, "debug", false, "Enable debug mode in the stack containers")
}

// load builds the stack from the descriptor file, expanding ${VAR:-default}
// placeholders from the environment, or from the built-in defaults.
func (f *stackFlags) load() (*stack.Stack, error) {
	if f.file == "" {
		s := stack.DefaultStack(stack.Params{
			Name:     f.name,
			Hostname: f.hostname,
			Debug:    f.debug,
		})
		return &s, nil
	}

	content, err := os.ReadFile(f.file)
	if err != nil {
		return nil, err
	}
	expanded := stack.ExpandVariables(string(content), os.LookupEnv)

	s, err := stack.Parse(expanded)
	if err != nil {
		return nil, err
	}
	if f.name != "" {
		s.Name = f.name
	}
	if f.hostname != "" {
		s.Hostname = f.hostname
	}
	return s, nil
}

// =============================================================================
// Render / Validate
// =============================================================================

// renderCmd handles "render": print the stack as compose YAML.
func renderCmd(args []string) int {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	var sf stackFlags
	sf.register(fs)
	output := fs.String("o", "", "Write YAML to file instead of stdout")
	fs.Parse(args)

	s, err := sf.load()
	if err != nil {
		return fail(err)
	}

	rendered, err := stack.Render(*s)
	if err != nil {
		return fail(err)
	}

	if *output != "" {
		if err := os.WriteFile(*output, []byte(rendered), 0644); err != nil {
			return fail(err)
		}
		fmt.Printf("wrote %s\n", *output)
		return 0
	}
	fmt.Print(rendered)
	return 0
}

// validateCmd handles "validate": parse and check a descriptor.
func validateCmd(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	var sf stackFlags
	sf.register(fs)
	fs.Parse(args)

	s, err := sf.load()
	if err != nil {
		return fail(err)
	}

	errs := stack.Validate(*s)
	if len(errs) == 0 {
		fmt.Printf("%s: OK (%d services, %d networks, %d volumes)\n",
			s.Name, len(s.Services), len(s.Networks), len(s.Volumes))
		if sf.file != "" {
			if content, err := os.ReadFile(sf.file); err == nil {
				if vars := stack.ExtractVariables(string(content)); len(vars) > 0 {
					fmt.Printf("variables: %s\n", strings.Join(vars, ", "))
				}
			}
		}
		return 0
	}

	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
	}
	return 1
}

// =============================================================================
// Deploy / Teardown
// =============================================================================

// deployCmd handles "deploy": bring the stack up on the Docker daemon.
func deployCmd(args []string) int {
	fs := flag.NewFlagSet("deploy", flag.ExitOnError)
	var sf stackFlags
	sf.register(fs)
	dockerHost := fs.String("docker-host", "", "Docker daemon address (default: environment)")
	dsn := fs.String("db", "", "Record the deployment in this SQLite database")
	gateTimeout := fs.Duration("gate-timeout", 2*time.Minute, "Max wait for a service's dependency gates")
	fs.Parse(args)

	s, err := sf.load()
	if err != nil {
		return fail(err)
	}

	d, cleanup, code := newDeployer(*dockerHost, *dsn, *gateTimeout)
	if code != 0 {
		return code
	}
	defer cleanup()

	rec, err := d.Deploy(context.Background(), *s)
	if err != nil {
		return fail(err)
	}

	fmt.Printf("deployed stack %s (deployment %s)\n", s.Name, rec.ID)
	fmt.Printf("hostname: %s\n", s.Hostname)
	return 0
}

// teardownCmd handles "teardown": stop and remove the stack.
func teardownCmd(args []string) int {
	fs := flag.NewFlagSet("teardown", flag.ExitOnError)
	var sf stackFlags
	sf.register(fs)
	dockerHost := fs.String("docker-host", "", "Docker daemon address (default: environment)")
	dsn := fs.String("db", "", "Record the teardown in this SQLite database")
	removeVolumes := fs.Bool("volumes", false, "Also remove named volumes and their data")
	fs.Parse(args)

	s, err := sf.load()
	if err != nil {
		return fail(err)
	}

	d, cleanup, code := newDeployer(*dockerHost, *dsn, 0)
	if code != 0 {
		return code
	}
	defer cleanup()

	if err := d.Teardown(context.Background(), *s, deployer.TeardownOptions{
		RemoveVolumes: *removeVolumes,
	}); err != nil {
		return fail(err)
	}

	fmt.Printf("removed stack %s\n", s.Name)
	if !*removeVolumes {
		fmt.Println("named volumes preserved, pass -volumes to delete them")
	}
	return 0
}

// =============================================================================
// Status / Logs
// =============================================================================

// statusCmd handles "status": report aggregate and per-container health.
func statusCmd(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	name := fs.String("name", stack.DefaultName, "Stack name")
	dockerHost := fs.String("docker-host", "", "Docker daemon address (default: environment)")
	fs.Parse(args)

	d, cleanup, code := newDeployer(*dockerHost, "", 0)
	if code != 0 {
		return code
	}
	defer cleanup()

	status, err := d.Status(context.Background(), *name)
	if err != nil {
		return fail(err)
	}

	fmt.Printf("stack %s: %s\n", status.Stack, status.Health)
	for _, c := range status.Containers {
		health := c.Health
		if health == "" {
			health = "-"
		}
		fmt.Printf("  %-10s %-10s health=%-10s restarts=%d\n", c.Service, c.Status, health, c.Restarts)
	}
	return 0
}

// logsCmd handles "logs <service>": stream the service's container logs.
func logsCmd(args []string) int {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	name := fs.String("name", stack.DefaultName, "Stack name")
	dockerHost := fs.String("docker-host", "", "Docker daemon address (default: environment)")
	follow := fs.Bool("follow", false, "Follow log output")
	tail := fs.String("tail", "100", "Number of lines from the end, or \"all\"")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: pressedge-stack logs [flags] <service>")
		return 2
	}
	service := fs.Arg(0)

	d, cleanup, code := newDeployer(*dockerHost, "", 0)
	if code != 0 {
		return code
	}
	defer cleanup()

	rc, err := d.Logs(*name, service, docker.LogOptions{
		Follow: *follow,
		Tail:   *tail,
	})
	if err != nil {
		return fail(err)
	}
	defer rc.Close()

	if _, err := io.Copy(os.Stdout, rc); err != nil {
		return fail(err)
	}
	return 0
}

// =============================================================================
// Helpers
// =============================================================================

// newDeployer connects to Docker (and optionally the record database) and
// returns the deployer with a cleanup func. A non-zero code means failure.
func newDeployer(dockerHost, dsn string, gateTimeout time.Duration) (*deployer.Deployer, func(), int) {
	client, err := docker.NewDockerClient(dockerHost)
	if err != nil {
		fail(err)
		return nil, nil, 1
	}

	var st store.Store
	if dsn != "" {
		st, err = store.NewSQLiteStore(dsn)
		if err != nil {
			client.Close()
			fail(err)
			return nil, nil, 1
		}
	}

	cleanup := func() {
		if st != nil {
			st.Close()
		}
		client.Close()
	}

	d := deployer.NewDeployer(deployer.Config{
		Client:      client,
		Store:       st,
		Logger:      cliLogger(),
		GateTimeout: gateTimeout,
	})
	return d, cleanup, 0
}

// cliLogger writes human-readable logs to stderr, keeping stdout for
// command output.
func cliLogger() *slog.Logger {
	level := slog.LevelWarn
	if strings.EqualFold(os.Getenv("PRESSEDGE_LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
