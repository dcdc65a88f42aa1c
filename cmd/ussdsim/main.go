package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "ussdsim",
		Short:   "Drive the Avanomad USSD dialog from a terminal",
		Version: Version,
	}
	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "Base URL of the API")
	rootCmd.PersistentFlags().Duration("timeout", 90*time.Second, "Request timeout")

	rootCmd.AddCommand(dialCmd())
	rootCmd.AddCommand(processDepositsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func clientFrom(cmd *cobra.Command) *client {
	base, _ := cmd.Flags().GetString("url")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return newClient(base, timeout)
}

func dialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Start an interactive USSD session",
		RunE: func(cmd *cobra.Command, args []string) error {
			phone, _ := cmd.Flags().GetString("phone")
			code, _ := cmd.Flags().GetString("service-code")
			if strings.TrimSpace(phone) == "" {
				return fmt.Errorf("--phone is required")
			}
			s := &simulator{client: clientFrom(cmd), phone: phone, serviceCode: code, newID: uuid.NewString}
			return s.run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringP("phone", "p", "", "Phone number of the simulated handset")
	cmd.Flags().String("service-code", "*384*1234#", "Dialled service code")
	return cmd
}

func processDepositsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process-deposits",
		Short: "Trigger one deposit processing run",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, _ := cmd.Flags().GetString("admin-key")
			out, err := clientFrom(cmd).processDeposits(cmd.Context(), key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().String("admin-key", os.Getenv("ADMIN_API_KEY"), "Operator key sent as X-Admin-Key")
	return cmd
}

// simulator keeps the accumulated text of one session the way a gateway
// does and starts a new session after every END reply.
type simulator struct {
	client      *client
	phone       string
	serviceCode string
	newID       func() string
}

func (s *simulator) run(ctx context.Context, in io.Reader, out io.Writer) error {
	sessionID := s.newID()
	var tokens []string

	send := func() (string, error) {
		return s.client.send(ctx, sessionID, s.serviceCode, s.phone, strings.Join(tokens, "*"))
	}

	reply, err := send()
	if err != nil {
		return err
	}
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintln(out, reply)
		if strings.HasPrefix(reply, "END") {
			fmt.Fprintln(out, "--- session ended, dial again or type 'exit' ---")
			sessionID = s.newID()
			tokens = nil
		}

		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "exit" || line == "quit" {
			return nil
		}
		if line != "" || len(tokens) > 0 {
			tokens = append(tokens, line)
		}
		if reply, err = send(); err != nil {
			return err
		}
	}
}
