package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"time"

	"touchgrass/internal/daemon"
)

const authHeaderName = "x-touchgrass-auth"

// daemonClient talks to the control server over its UNIX socket (spec §4.6).
// baseURL is a fixed "http://daemon" placeholder: DialContext always dials
// the socket regardless of the host the URL names.
type daemonClient struct {
	httpClient *http.Client
	authToken  string
}

const daemonBaseURL = "http://daemon"

func newDaemonClient(baseDir, authToken string) *daemonClient {
	sockPath := tgSocketPath(baseDir)
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			d := net.Dialer{}
			return d.DialContext(ctx, "unix", sockPath)
		},
	}
	return &daemonClient{
		httpClient: &http.Client{Transport: transport, Timeout: 10 * time.Second},
		authToken:  authToken,
	}
}

func (c *daemonClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, daemonBaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set(authHeaderName, c.authToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error != "" {
			return fmt.Errorf("daemon: %s", errBody.Error)
		}
		return fmt.Errorf("daemon request %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *daemonClient) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *daemonClient) Post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// ensureDaemonRunning makes sure a daemon is listening on baseDir's socket,
// spawning one in the background (re-exec of this binary's hidden `_daemon`
// subcommand) the first time EnsureDaemonHealthy fails (spec §4.1/§5).
func ensureDaemonRunning(ctx context.Context, baseDir, authToken string) (*daemonClient, error) {
	client := newDaemonClient(baseDir, authToken)
	pingCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	healthy := pingHealth(pingCtx, client)
	cancel()
	if healthy {
		return client, nil
	}

	if err := spawnDaemon(); err != nil {
		return nil, fmt.Errorf("start daemon: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if !daemon.EnsureDaemonHealthy(startCtx, client.httpClient, daemonBaseURL, authToken) {
		return nil, fmt.Errorf("daemon did not become healthy")
	}
	return client, nil
}

// pingHealth does a single best-effort /health check, used only to skip the
// slower EnsureDaemonHealthy retry loop when a daemon is already up.
func pingHealth(ctx context.Context, c *daemonClient) bool {
	return c.Get(ctx, "/health", nil) == nil
}

// spawnDaemon re-execs this binary as `<argv0> _daemon`, detached from the
// current terminal, with argv[0] rewritten so ReapRedundantDaemons and
// process listings recognize it (spec §4.10).
func spawnDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe, "_daemon")
	cmd.Args[0] = daemon.DaemonProcessName
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = daemon.NewSysProcAttr()
	return cmd.Start()
}
