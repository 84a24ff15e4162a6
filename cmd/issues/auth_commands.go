package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/amonks/issues/auth"
	"github.com/amonks/issues/client"
	"github.com/amonks/issues/internal/credentials"
	"github.com/amonks/issues/internal/editor"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var signUpCmd = &cobra.Command{
	Use:   "signup <email>",
	Short: "Create an account and sign in",
	Long: `Create an account on the server and save the session.

The password comes from --password, a hidden prompt when running
interactively, or the first line of stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runSignUp,
}

var signInCmd = &cobra.Command{
	Use:   "signin <email>",
	Short: "Sign in and save the session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSignIn,
}

var signOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "End the saved session",
	Args:  cobra.NoArgs,
	RunE:  runSignOut,
}

var whoAmICmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in identity",
	Args:  cobra.NoArgs,
	RunE: runWithClient(func(cmd *cobra.Command, args []string, api *client.Client) error {
		email, err := api.WhoAmI(cmd.Context())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), email)
		return err
	}),
}

var authPassword string

func init() {
	rootCmd.AddCommand(signUpCmd, signInCmd, signOutCmd, whoAmICmd)
	for _, cmd := range []*cobra.Command{signUpCmd, signInCmd} {
		cmd.Flags().StringVar(&authPassword, "password", "", "Password (prompted when omitted)")
	}
}

func runSignUp(cmd *cobra.Command, args []string) error {
	return runCredentials(cmd, args[0], "Signed up", func(api *client.Client, email, password string) (auth.Session, error) {
		return api.SignUp(cmd.Context(), email, password)
	})
}

func runSignIn(cmd *cobra.Command, args []string) error {
	return runCredentials(cmd, args[0], "Signed in", func(api *client.Client, email, password string) (auth.Session, error) {
		return api.SignIn(cmd.Context(), email, password)
	})
}

func runCredentials(cmd *cobra.Command, email, verb string, call func(*client.Client, string, string) (auth.Session, error)) error {
	password, err := readPassword(cmd)
	if err != nil {
		return err
	}
	api, target, creds, err := anonymousClient()
	if err != nil {
		return err
	}
	session, err := call(api, email, password)
	if err != nil {
		return err
	}
	if err := creds.Set(target.Server, credentials.Entry{Email: session.Email, Token: session.Token}); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s as %s\n", verb, session.Email)
	return err
}

func runSignOut(cmd *cobra.Command, args []string) error {
	target, creds, err := resolveTarget()
	if err != nil {
		return err
	}
	if target.Token == "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
		return err
	}
	if err := client.New(target.Server, target.Token).SignOut(cmd.Context()); err != nil && !errors.Is(err, auth.ErrUnauthenticated) {
		return err
	}
	if _, err := creds.Remove(target.Server); err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
	return err
}

func readPassword(cmd *cobra.Command) (string, error) {
	if cmd.Flags().Changed("password") {
		return authPassword, nil
	}
	if editor.IsInteractive() {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		data, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(data), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
