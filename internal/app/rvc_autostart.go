package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ent0n29/rvcchat/internal/config"
)

const rvcServerStartTimeout = 30 * time.Second

// rvcAPIServer is an rvc-python API process started on behalf of the api backend.
type rvcAPIServer struct {
	cmd  *exec.Cmd
	addr string
}

// localRVCAddr returns host:port for a loopback API URL. Remote hosts are never managed.
func localRVCAddr(rawURL string) (addr, port string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", "", false
	}
	host := strings.ToLower(u.Hostname())
	switch host {
	case "":
		host = "127.0.0.1"
	case "127.0.0.1", "localhost":
	default:
		return "", "", false
	}
	port = u.Port()
	if port == "" {
		port = "5050"
	}
	return net.JoinHostPort(host, port), port, true
}

// startRVCServer launches `python -m rvc_python api` when the api backend is
// selected, autostart is on and nothing answers on the configured loopback port.
// A nil server with a nil error means there was nothing to start.
func startRVCServer(ctx context.Context, cfg config.Config) (*rvcAPIServer, error) {
	if !cfg.RVCAutoStart || !strings.EqualFold(strings.TrimSpace(cfg.RVCBackend), "api") {
		return nil, nil
	}
	addr, port, ok := localRVCAddr(cfg.RVCAPIURL)
	if !ok || isTCPListening(addr, 220*time.Millisecond) {
		return nil, nil
	}

	bin := strings.TrimSpace(cfg.RVCPython)
	if bin == "" {
		bin = "python3"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("rvc autostart: %w", err)
	}
	args := []string{"-m", "rvc_python", "api", "-p", port}
	if cfg.ModelsDir != "" {
		args = append(args, "-md", cfg.ModelsDir)
	}
	cmd := exec.Command(bin, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("rvc autostart: %w", err)
	}
	srv := &rvcAPIServer{cmd: cmd, addr: addr}

	// Model loading can take a while on first start.
	wctx, cancel := context.WithTimeout(ctx, rvcServerStartTimeout)
	defer cancel()
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for !isTCPListening(addr, 160*time.Millisecond) {
		select {
		case <-wctx.Done():
			_ = srv.Stop()
			return nil, fmt.Errorf("rvc autostart: %s not listening: %w", addr, wctx.Err())
		case <-tick.C:
		}
	}
	return srv, nil
}

// Stop interrupts the server and kills it if it has not exited after two seconds.
func (s *rvcAPIServer) Stop() error {
	if s == nil || s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	_ = s.cmd.Process.Signal(os.Interrupt)
	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()
	select {
	case err := <-done:
		return ignoreExit(err)
	case <-time.After(2 * time.Second):
		_ = s.cmd.Process.Kill()
		return ignoreExit(<-done)
	}
}

func isTCPListening(addr string, timeout time.Duration) bool {
	if strings.TrimSpace(addr) == "" {
		return false
	}
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// ignoreExit treats the interrupt or kill just sent as a clean stop.
func ignoreExit(err error) error {
	var exitErr *exec.ExitError
	if err == nil || errors.Is(err, os.ErrProcessDone) || errors.As(err, &exitErr) {
		return nil
	}
	return err
}
