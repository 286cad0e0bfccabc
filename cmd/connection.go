// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/vescmotor/pkg/link"
	"github.com/Thermoquad/vescmotor/pkg/motor"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("VESC_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens the link named by cfg.Port.
func OpenConnection(cfg motor.Config) (link.Conn, string, error) {
	opts := link.Options{
		Baudrate:      cfg.Baudrate,
		ReadTimeout:   cfg.TimeoutDuration(),
		Username:      wsUsername,
		SkipTLSVerify: wsNoSSLVerify,
		Checksum:      cfg.ChecksumVariant(),
		DutyFormat:    cfg.DutyCycleFormat,
	}
	if wsUsername != "" && (strings.HasPrefix(cfg.Port, "ws://") || strings.HasPrefix(cfg.Port, "wss://")) {
		password, err := GetPassword()
		if err != nil {
			return nil, "", err
		}
		opts.Password = password
	}
	return link.Open(cfg.Port, opts)
}

// openController loads the configuration and connects a motor controller.
func openController(cmd *cobra.Command) (*motor.Controller, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	conn, connInfo, err := OpenConnection(cfg)
	if err != nil {
		return nil, "", err
	}

	ctrl, err := motor.New(cmd.Context(), conn, cfg, log.StandardLogger())
	if err != nil {
		conn.Close()
		return nil, "", err
	}
	return ctrl, connInfo, nil
}

// commandContext returns a context cancelled on interrupt.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signalContext(ctx)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
