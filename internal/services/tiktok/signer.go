package tiktok

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"reembed/internal/services"
	"reembed/internal/toolexec"
)

// Signer computes the X-Bogus token for a request URL.
type Signer interface {
	Sign(ctx context.Context, rawURL string) (string, error)
}

// NodeSigner evaluates the xbogus module with node. The module must be
// resolvable from NODE_PATH or the working directory.
type NodeSigner struct {
	Runner    toolexec.Runner
	Binary    string
	UserAgent string
}

// Script is the program fed to node on stdin.
func (s NodeSigner) Script(rawURL string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rawURL); err != nil {
		return "", err
	}
	quoted := strings.TrimSpace(buf.String())
	ua := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s.UserAgent)
	return fmt.Sprintf("console.log(require('xbogus')(%s, '%s'));", quoted, ua), nil
}

// Sign runs the script and returns the first line of output.
func (s NodeSigner) Sign(ctx context.Context, rawURL string) (string, error) {
	script, err := s.Script(rawURL)
	if err != nil {
		return "", fmt.Errorf("build signer script: %w", err)
	}
	binary := strings.TrimSpace(s.Binary)
	if binary == "" {
		binary = "node"
	}
	cmd := toolexec.Command{Binary: binary, Args: []string{"-"}, Stdin: strings.NewReader(script)}
	res, err := s.Runner.Run(ctx, cmd)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", toolexec.NewProcessError(cmd, res)
	}
	scanner := bufio.NewScanner(bytes.NewReader(res.Stdout))
	if scanner.Scan() {
		if token := strings.TrimSpace(scanner.Text()); token != "" {
			return token, nil
		}
	}
	return "", services.Wrap(services.ErrExternalTool, "tiktok", "sign", "signer produced no token", nil)
}
