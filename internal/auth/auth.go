// Package auth performs the DTN admin-port LOGIN exchange.
package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials format")
	ErrMissingUser        = errors.New("user is required")
)

// DefaultTimeout bounds the whole exchange when the context has no deadline.
const DefaultTimeout = 10 * time.Second

// Credentials holds the admin login.
type Credentials struct {
	User     string
	Password string
}

// LoadCredentials reads "user,pass" from the first line of a file.
// The password may itself contain commas.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	line, _, _ := strings.Cut(string(data), "\n")
	line = strings.TrimRight(line, "\r")

	user, pass, ok := strings.Cut(line, ",")
	if !ok {
		return nil, ErrInvalidCredentials
	}

	creds := &Credentials{User: strings.TrimSpace(user), Password: pass}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return creds, nil
}

// Validate checks the credentials are usable.
func (c *Credentials) Validate() error {
	if c.User == "" {
		return ErrMissingUser
	}
	return nil
}

// LoginError is returned when the admin port answers anything but OK.
type LoginError struct {
	Response string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login rejected: %q", e.Response)
}

// Login connects to the admin port, sends LOGIN,<user>,<pass> and expects
// a single "OK" line back.
func Login(ctx context.Context, addr string, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial admin port: %w", err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	conn.SetDeadline(deadline)

	req := "LOGIN," + creds.User + "," + creds.Password + "\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		return fmt.Errorf("send login: %w", err)
	}

	resp, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read login response: %w", err)
	}

	resp = strings.TrimRight(resp, "\r\n")
	if resp != "OK" {
		return &LoginError{Response: resp}
	}
	return nil
}
