// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"context"
	"io"
	"net"
)

// ClientAuth is a security type the client can negotiate (RFC 6143
// Section 7.2).
type ClientAuth interface {
	SecurityType() uint8
	Handshake(ctx context.Context, conn net.Conn) error
	String() string
}

// ClientAuthNone implements the "None" security type (1).
type ClientAuthNone struct {
	logger Logger
}

// SecurityType returns 1.
func (c *ClientAuthNone) SecurityType() uint8 {
	return 1
}

// Handshake has nothing to exchange; it only honours cancellation.
func (c *ClientAuthNone) Handshake(ctx context.Context, conn net.Conn) error {
	if err := ctx.Err(); err != nil {
		return timeoutError("ClientAuthNone.Handshake", "authentication cancelled", err)
	}
	loggerOrNoOp(c.logger).Debug("None authentication completed")
	return nil
}

func (c *ClientAuthNone) String() string {
	return "None"
}

// SetLogger sets the logger for the authentication method.
func (c *ClientAuthNone) SetLogger(logger Logger) {
	c.logger = logger
}

// PasswordAuth implements VNC Authentication (security type 2), a DES
// challenge-response keyed by the password. Only the first eight bytes of
// the password are significant.
type PasswordAuth struct {
	Password string
	logger   Logger
}

// NewPasswordAuth returns a PasswordAuth for password.
func NewPasswordAuth(password string) *PasswordAuth {
	return &PasswordAuth{Password: password}
}

// SecurityType returns 2.
func (p *PasswordAuth) SecurityType() uint8 {
	return 2
}

// Handshake reads the 16-byte challenge and answers with its encryption.
func (p *PasswordAuth) Handshake(ctx context.Context, c net.Conn) error {
	logger := loggerOrNoOp(p.logger)
	if err := ctx.Err(); err != nil {
		return timeoutError("PasswordAuth.Handshake", "authentication cancelled", err)
	}
	if len(p.Password) > VNCMaxPasswordLength {
		logger.Warn("Password exceeds VNC maximum length, only the first 8 bytes are used",
			Field{Key: "password_length", Value: len(p.Password)})
	}

	challenge := make([]byte, VNCChallengeSize)
	defer clearBytes(challenge)
	if _, err := io.ReadFull(c, challenge); err != nil {
		logger.Error("Failed to read authentication challenge", Field{Key: "error", Value: err})
		return networkError("PasswordAuth.Handshake", "failed to read authentication challenge", err)
	}

	response, err := encryptChallenge(p.Password, challenge)
	if err != nil {
		return authenticationError("PasswordAuth.Handshake", "failed to encrypt password", err)
	}
	defer clearBytes(response)

	if _, err := c.Write(response); err != nil {
		logger.Error("Failed to send encrypted password response", Field{Key: "error", Value: err})
		return networkError("PasswordAuth.Handshake", "failed to send encrypted password", err)
	}

	logger.Debug("VNC password authentication handshake completed")
	return nil
}

func (p *PasswordAuth) String() string {
	return "VNC Password"
}

// SetLogger sets the logger for the authentication method.
func (p *PasswordAuth) SetLogger(logger Logger) {
	p.logger = logger
}

// ClearPassword drops the stored password.
func (p *PasswordAuth) ClearPassword() {
	p.Password = ""
}
