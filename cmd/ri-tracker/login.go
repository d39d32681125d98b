package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"remoteintegrity/ri-tracker/internal/client"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	loginEmail    string
	loginRemember bool

	stdin = bufio.NewReader(os.Stdin)
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the tracking service",
	Long: `Sign in with the employee email and password. With --remember (the
default) the token is stored locally so the agent starts signed in.`,
	Example: `  ri-tracker login --email dev@example.com
  RI_PASSWORD=... ri-tracker login --email dev@example.com --remember=false`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored login",
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Employee email")
	loginCmd.Flags().BoolVar(&loginRemember, "remember", true, "Store the token for later runs")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	email := strings.TrimSpace(loginEmail)
	if email == "" {
		if email, err = prompt("Email: "); err != nil {
			return err
		}
	}
	password, err := readPassword()
	if err != nil {
		return err
	}
	if email == "" || password == "" {
		return errors.New("email and password are required")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.BackendTimeout())
	defer cancel()

	user, err := a.auth.Login(ctx, email, password, loginRemember)
	if err != nil {
		if client.IsAuth(err) {
			return fmt.Errorf("invalid email or password: %w", err)
		}
		return fmt.Errorf("login failed: %w", err)
	}

	green := color.New(color.FgGreen, color.Bold)
	green.Print("Signed in ")
	fmt.Printf("as %s %s (%s)\n", user.FirstName, user.LastName, user.Email)
	if !loginRemember {
		color.New(color.FgYellow).Println("The login was not stored; the agent will start signed out.")
	}
	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.auth.Logout(); err != nil {
		return err
	}
	fmt.Println("Signed out")
	return nil
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readPassword takes RI_PASSWORD when set, then reads without echo from a
// terminal, then falls back to a plain line for piped input.
func readPassword() (string, error) {
	if pw := os.Getenv("RI_PASSWORD"); pw != "" {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt("")
	}
	fmt.Print("Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}
