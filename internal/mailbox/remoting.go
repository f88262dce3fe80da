package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	krbclient "github.com/jcmturner/gokrb5/v8/client"
	krbconfig "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/spnego"
)

// RemotingConfig configures the HTTP command endpoint of the mailbox
// subsystem. When Kerberos settings are present, requests are authenticated
// with SPNEGO; otherwise they are sent unauthenticated (lab setups only).
type RemotingConfig struct {
	Endpoint string

	KerberosRealm  string
	KerberosConfig string // path to krb5.conf
	KerberosKeytab string // path to keytab
	Username       string
	Password       string

	Timeout time.Duration
}

// httpDoer is satisfied by *http.Client and *spnego.Client.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RemotingRunner executes mailbox commands against a remote HTTP endpoint.
type RemotingRunner struct {
	endpoint string
	client   httpDoer
	logger   *slog.Logger
}

// NewRemotingRunner builds a runner for the configured endpoint.
func NewRemotingRunner(cfg RemotingConfig, logger *slog.Logger) (*RemotingRunner, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("mailbox: remoting endpoint is required")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("mailbox: invalid remoting endpoint: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	base := &http.Client{Timeout: timeout}

	var doer httpDoer = base
	if cfg.KerberosRealm != "" {
		krbCl, err := newKerberosClient(cfg)
		if err != nil {
			return nil, err
		}
		doer = spnego.NewClient(krbCl, base, "")
	}

	return &RemotingRunner{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   doer,
		logger:   logger.With("subsystem", "mailbox"),
	}, nil
}

// newKerberosClient builds the Kerberos client used for SPNEGO, preferring a
// keytab over a password.
func newKerberosClient(cfg RemotingConfig) (*krbclient.Client, error) {
	confPath := cfg.KerberosConfig
	if confPath == "" {
		confPath = "/etc/krb5.conf"
	}
	krbConf, err := krbconfig.Load(confPath)
	if err != nil {
		return nil, fmt.Errorf("mailbox: load krb5 config: %w", err)
	}

	if cfg.KerberosKeytab != "" {
		kt, err := keytab.Load(cfg.KerberosKeytab)
		if err != nil {
			return nil, fmt.Errorf("mailbox: load keytab: %w", err)
		}
		return krbclient.NewWithKeytab(cfg.Username, cfg.KerberosRealm, kt, krbConf,
			krbclient.DisablePAFXFAST(true)), nil
	}

	if cfg.Username != "" && cfg.Password != "" {
		return krbclient.NewWithPassword(cfg.Username, cfg.KerberosRealm, cfg.Password, krbConf,
			krbclient.DisablePAFXFAST(true)), nil
	}

	return nil, fmt.Errorf("mailbox: kerberos realm set but no keytab or password provided")
}

// Exists reports whether a mailbox is provisioned for the given key.
func (r *RemotingRunner) Exists(ctx context.Context, key string) (bool, error) {
	target := r.endpoint + "/mailboxes/" + url.PathEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("existence check: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, remoteError(resp)
	}
}

// commandRequest is the wire form of a remote command invocation.
type commandRequest struct {
	Command string            `json:"command"`
	Key     string            `json:"key"`
	Params  map[string]string `json:"params,omitempty"`
}

// Run executes a named command for a mailbox key.
func (r *RemotingRunner) Run(ctx context.Context, command, key string, params map[string]string) error {
	payload, err := json.Marshal(commandRequest{Command: command, Key: key, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/commands", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return remoteError(resp)
	}

	r.logger.Debug("mailbox command executed",
		"command", command,
		"key", key,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// remoteError surfaces the remote error text from a failed command response.
func remoteError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	text := strings.TrimSpace(string(body))
	if text == "" {
		text = resp.Status
	}
	return fmt.Errorf("remote endpoint returned %d: %s", resp.StatusCode, text)
}
