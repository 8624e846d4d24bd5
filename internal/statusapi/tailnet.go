// ABOUTME: Optional tailnet listener for the status API using tsnet
// ABOUTME: Serves :80, or :443 with certificates issued by the tailnet

package statusapi

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"
)

// TailnetConfig puts the status API on a tailnet instead of Config.Addr.
type TailnetConfig struct {
	Hostname  string
	AuthKey   string // falls back to TS_AUTHKEY
	StateDir  string
	Ephemeral bool
	HTTPS     bool
}

// resolveTailnetStateDir returns the tsnet state directory.
func resolveTailnetStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set status.tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "coven", "assistant-tailscale"), nil
}

// resolveTailnetAuthKey returns the auth key from config or environment.
func resolveTailnetAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set status.tailscale.auth_key or the TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// listenTailnet brings up a tsnet node and returns its HTTP listener. The
// caller closes the node after serving.
func (s *Server) listenTailnet(ctx context.Context) (net.Listener, *tsnet.Server, error) {
	tc := s.tailnet

	stateDir, err := resolveTailnetStateDir(tc.StateDir)
	if err != nil {
		return nil, nil, err
	}
	authKey, err := resolveTailnetAuthKey(tc.AuthKey)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	node := &tsnet.Server{
		Hostname:  tc.Hostname,
		Dir:       stateDir,
		Ephemeral: tc.Ephemeral,
		AuthKey:   authKey,
		Logf: func(format string, args ...any) {
			s.logger.Debug(fmt.Sprintf(format, args...), "source", "tsnet")
		},
	}

	s.logger.Info("starting tailscale node", "hostname", tc.Hostname, "state_dir", stateDir, "ephemeral", tc.Ephemeral)
	status, err := node.Up(ctx)
	if err != nil {
		_ = node.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.logTailnetStatus(tc.Hostname, status)

	if !tc.HTTPS {
		ln, err := node.Listen("tcp", ":80")
		if err != nil {
			_ = node.Close()
			return nil, nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, node, nil
	}

	ln, err := node.Listen("tcp", ":443")
	if err != nil {
		_ = node.Close()
		return nil, nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := node.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = node.Close()
		return nil, nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), node, nil
}

func (s *Server) logTailnetStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	s.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}
