// Package main provides the tiffauth binary: a development emulator for
// the identity provider and session backend, plus a demo that drives the
// full login flow against it.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	tiffauth "github.com/tiffinwaleofficial/student-app-sub003"
	"github.com/tiffinwaleofficial/student-app-sub003/config"
	"github.com/tiffinwaleofficial/student-app-sub003/emulator"
)

const version = "0.2.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "tiffauth",
		Short: "Authentication client tooling for the student meal app",
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(&logLevel))
	cmd.AddCommand(demoCmd(&logLevel))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tiffauth version %s\n", version)
		},
	})

	return cmd
}

func serveCmd(logLevel *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the provider and backend emulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := tiffauth.NewLogger(*logLevel)
			emu := emulator.New(emulator.Options{Logger: logger})
			return emu.Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9000", "Listen address")

	return cmd
}

func demoCmd(logLevel *string) *cobra.Command {
	var (
		addr  string
		phone string
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the full login flow against an in-process emulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(*logLevel, addr, phone)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9000", "Emulator listen address")
	cmd.Flags().StringVar(&phone, "phone", "+919876543210", "Phone number to log in with")

	return cmd
}

func runDemo(logLevel, addr, phone string) error {
	logger := tiffauth.NewLogger(logLevel)
	ctx := context.Background()

	emu := emulator.New(emulator.Options{Logger: logger})
	go func() {
		if err := emu.Run(addr); err != nil {
			logger.Error("emulator stopped", "error", err)
		}
	}()
	// Give the listener a moment to come up
	time.Sleep(200 * time.Millisecond)

	cfg := config.Default()
	cfg.Provider.BaseURL = "http://" + addr
	cfg.Backend.BaseURL = "http://" + addr

	sys, err := tiffauth.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sys.Close()

	if err := sys.Start(ctx); err != nil {
		return err
	}
	client := sys.Client()

	fmt.Printf("→ requesting passcode for %s\n", phone)
	if err := client.SendOTP(ctx, phone); err != nil {
		return fmt.Errorf("send passcode: %w", err)
	}

	code, ok := emu.LastCode(phone)
	if !ok {
		return fmt.Errorf("emulator issued no passcode for %s", phone)
	}
	fmt.Printf("→ received passcode %s, confirming\n", code)

	if err := client.VerifyOTP(ctx, code); err != nil {
		return fmt.Errorf("verify passcode: %w", err)
	}

	user, _ := client.User()
	fmt.Printf("→ logged in as %s (wallet ₹%s)\n", user.Name, user.WalletBalance.StringFixed(2))

	verdict := client.Validate(ctx, "")
	fmt.Printf("→ credential valid: %v\n", verdict.Valid)

	fmt.Println("→ rotating tokens")
	if err := client.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	fmt.Println("→ logging out")
	if err := client.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	fmt.Printf("→ authenticated after logout: %v\n", client.IsAuthenticated())
	return nil
}
