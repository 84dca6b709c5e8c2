// Command recebi is a CLI client for the Recebi reception API.
package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "recebi")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "recebi")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

func dropToken() error {
	err := os.Remove(tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ---- http client ----

func loadTLS(caPath string, insecure bool) (*tls.Config, error) {
	if insecure {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // dev flag
	}
	if caPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return &tls.Config{RootCAs: pool}, nil
}

// apiError is a non-2xx answer from the server.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string { return fmt.Sprintf("http %d: %s", e.Status, e.Message) }

type client struct {
	base  string
	token string
	hc    *http.Client
}

func newClient(addr string, tlsCfg *tls.Config, token string) *client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		scheme := "http"
		if tlsCfg != nil {
			scheme = "https"
		}
		base = scheme + "://" + base
	}
	hc := &http.Client{Timeout: 30 * time.Second}
	if tlsCfg != nil {
		hc.Transport = &http.Transport{TLSClientConfig: tlsCfg}
	}
	return &client{base: base, token: token, hc: hc}
}

// do sends in as JSON and decodes a 2xx answer into out. Either may be nil.
func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+"/api/v1"+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var m struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&m)
		if m.Message == "" {
			m.Message = http.StatusText(resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Message: m.Message}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `recebi CLI
Usage:
  recebi --addr HOST:PORT [--cacert file | --insecure] <cmd> [args]

Commands:
  version
  login        -e <email> -p <secret>                (saves token)
  logout
  packages     [-s <status>]
  package      --id <uuid>
  register     --owner <uuid> -d <description> [--unit U] [--tracking T]
  pickup       --id <uuid>
  rm           --id <uuid>
  actors       [-s <status>]
  actor        --id <uuid>
  add-actor    -n <name> -e <email> -p <secret> -r <role> [--unit U] [--phone P]
  update-actor --id <uuid> [-n] [-e] [-p] [--unit] [--phone] [--status]
  search       -q <name fragment>
  history      [--mine | --id <uuid>]
  tail         --brokers host:9092 [--topic recebi.history] [--group G]
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against the configured server.
func main() {
	fs := flag.NewFlagSet("recebi", flag.ContinueOnError)
	addr := fs.String("addr", envOr("RECEBI_ADDR", "localhost:8080"), "server addr")
	caPath := fs.String("cacert", "", "CA cert (PEM)")
	insecure := fs.Bool("insecure", false, "skip cert verify (dev)")
	fs.Usage = usage
	fs.SetInterspersed(false)
	if err := fs.Parse(os.Args[1:]); err != nil {
		usage()
	}
	if fs.NArg() < 1 {
		usage()
	}
	cmd, args := fs.Arg(0), fs.Args()[1:]

	tlsCfg, err := loadTLS(*caPath, *insecure)
	if err != nil {
		fail(err)
	}

	if cmd == "version" {
		fmt.Printf("recebi %s (%s)\n", version, buildDate)
		return
	}
	if cmd == "tail" {
		if err := cmdTail(args, os.Stdout); err != nil {
			fail(err)
		}
		return
	}

	var token string
	if cmd != "login" {
		if token, err = loadToken(); err != nil {
			fail(err)
		}
	}
	c := newClient(*addr, tlsCfg, token)

	run, ok := commands[cmd]
	if !ok {
		usage()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := run(ctx, c, args, os.Stdout); err != nil {
		fail(err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ---- helpers ----

func fail(err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "api error: code=%d msg=%s\n", ae.Status, ae.Message)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
