package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"flickrbackup/pkg/auth"
	"flickrbackup/pkg/config"
	errs "flickrbackup/pkg/errors"
	"flickrbackup/pkg/flickr"
	"flickrbackup/pkg/logger"
	"flickrbackup/pkg/ui"
)

const defaultAccountName = "default"

var verifyLogin bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored Flickr API credentials",
	Long: `Manage stored Flickr API credentials.

Accounts are kept in, first available wins:
  - the system keychain
  - an AES-GCM encrypted file in the user config directory
    (passphrase from FLICKRBACKUP_PASSPHRASE or generated)
  - FLICKRBACKUP_USERNAME, FLICKRBACKUP_API_KEY and FLICKRBACKUP_API_SECRET (read only)

Use a stored account with 'flickrbackup --account <name> <destination>'.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store Flickr API credentials",
	Long: `Store a Flickr username with its API key and secret under a name
(default "default"). The secret is read without echo.

Create an API key at https://www.flickr.com/services/apps/create/.`,
	Example: `  flickrbackup auth login
  flickrbackup auth login personal --verify`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [name]",
	Short: "Remove stored credentials",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Long:  `List stored accounts with their API key and secret masked.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)

	loginCmd.Flags().BoolVar(&verifyLogin, "verify", false, "check the credentials against Flickr before storing")
}

func accountArg(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0])
	}
	return defaultAccountName
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return errs.Configuration("auth", err.Error())
	}

	in := cmd.InOrStdin()
	out := cmd.OutOrStdout()
	reader := bufio.NewReader(in)

	account := &auth.Account{Name: accountArg(args)}

	if account.Username, err = prompt(out, reader, "Flickr username: "); err != nil {
		return err
	}
	if account.APIKey, err = prompt(out, reader, "API key: "); err != nil {
		return err
	}
	fmt.Fprint(out, "API secret: ")
	if account.APISecret, err = readSecret(in, reader); err != nil {
		return fmt.Errorf("failed to read secret: %w", err)
	}
	fmt.Fprintln(out)

	if err := account.Validate(); err != nil {
		return errs.Configuration("auth.login", err.Error())
	}

	if verifyLogin {
		if err := verifyAccount(cmd.Context(), account); err != nil {
			return err
		}
		ui.PrintSuccess("Credentials accepted by Flickr")
	}

	if err := manager.Store(account); err != nil {
		return err
	}

	ui.PrintSuccess("Account stored: " + account.Name)
	if account.Name != defaultAccountName {
		ui.Println(fmt.Sprintf("Use it with: flickrbackup --account %s <destination>", account.Name))
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return errs.Configuration("auth", err.Error())
	}

	name := accountArg(args)
	if err := manager.Delete(name); err != nil {
		return errs.Configuration("auth.logout", err.Error())
	}
	ui.PrintSuccess("Account removed: " + name)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return errs.Configuration("auth", err.Error())
	}

	accounts, err := manager.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "use 'flickrbackup auth login' to add one")
		return nil
	}

	out := cmd.OutOrStdout()
	for _, account := range accounts {
		s := auth.SanitizeAccount(account)
		fmt.Fprintf(out, "%s\n", s.Name)
		fmt.Fprintf(out, "   Username:   %s\n", s.Username)
		fmt.Fprintf(out, "   API key:    %s\n", s.APIKey)
		fmt.Fprintf(out, "   API secret: %s\n", s.APISecret)
		fmt.Fprintf(out, "   Modified:   %s\n", s.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func prompt(out io.Writer, reader *bufio.Reader, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readSecret reads without echo from a terminal, or a plain line otherwise
func readSecret(in io.Reader, reader *bufio.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// verifyAccount resolves the username through the API with the new key
func verifyAccount(ctx context.Context, account *auth.Account) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cfg, err := config.Load(configFile, "", nil)
	if err != nil {
		return err
	}
	cfg.Flickr.Username = account.Username
	cfg.Flickr.APIKey = account.APIKey
	cfg.Flickr.APISecret = account.APISecret

	client, err := flickr.NewClient(cfg, logger.NewNopLogger())
	if err != nil {
		return err
	}
	defer client.Close()

	_, err = client.UserID(ctx)
	return err
}
