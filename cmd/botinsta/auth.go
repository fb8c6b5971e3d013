package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"botinsta/pkg/auth"
	"botinsta/pkg/instagram"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Instagram credentials",
	Long: `Manage stored Instagram credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (backward compatibility)

Never share your credentials or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store Instagram credentials securely",
	Long: `Store Instagram credentials securely in the system keychain or encrypted file.

You will be prompted for:
  - Instagram username (if not provided)
  - Session ID (from sessionid cookie)
  - CSRF Token (from csrftoken cookie)
  - User ID (from ds_user_id cookie, optional)
  - User Agent (optional, press Enter to rotate defaults)

To get these values:
1. Log into Instagram in your browser
2. Open Developer Tools (F12)
3. Go to Application/Storage > Cookies
4. Find and copy the sessionid, csrftoken and ds_user_id values`,
	Example: `  # Interactive login
  botinsta auth login

  # Login with username
  botinsta auth login myusername`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [username]",
	Short: "Remove stored credentials",
	Long: `Remove stored Instagram credentials.

If no username is provided, you will be shown a list of stored accounts
to choose from.`,
	Example: `  # Interactive logout
  botinsta auth logout

  # Logout specific account
  botinsta auth logout myusername`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored Instagram accounts with sanitized credential information.`,
	Run:   runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
}

func runLogin(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fatal("Failed to initialize credential manager", err)
	}

	var username string
	if len(args) > 0 {
		username = instagram.SanitizeUsername(args[0])
	}

	reader := bufio.NewReader(os.Stdin)

	if username == "" {
		fmt.Print("Instagram username: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			fatal("Failed to read username", err)
		}
		username = instagram.SanitizeUsername(input)
	}

	if username == "" {
		fatal("Username is required", nil)
	}

	if existing, _ := manager.Retrieve(username); existing != nil {
		fmt.Printf("Account '%s' already exists. Update credentials? (y/N): ", username)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Println("\nEnter your cookie values (they will be hidden as you type):")

	// Session ID with validation
	var sessionID string
	for {
		fmt.Print("sessionid cookie value: ")
		sessionID, err = readPassword()
		if err != nil {
			fatal("Failed to read session ID", err)
		}

		if len(sessionID) < 20 || !strings.Contains(sessionID, "%") {
			fmt.Println("\nThat doesn't look like a valid sessionid.")
			fmt.Println("It should be a long string containing % symbols.")
			fmt.Print("Try again? (Y/n): ")
			retry, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(retry)) == "n" {
				os.Exit(1)
			}
			continue
		}
		break
	}

	// CSRF token with validation
	var csrfToken string
	for {
		fmt.Print("csrftoken cookie value: ")
		csrfToken, err = readPassword()
		if err != nil {
			fatal("Failed to read CSRF token", err)
		}

		if len(csrfToken) < 20 || len(csrfToken) > 50 {
			fmt.Println("\nThat doesn't look like a valid csrftoken.")
			fmt.Println("It should be around 32 characters long.")
			fmt.Print("Try again? (Y/n): ")
			retry, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(retry)) == "n" {
				os.Exit(1)
			}
			continue
		}
		break
	}

	fmt.Print("ds_user_id cookie value (press Enter to skip): ")
	dsUserID, _ := reader.ReadString('\n')
	dsUserID = strings.TrimSpace(dsUserID)

	fmt.Print("User Agent (press Enter to rotate defaults): ")
	userAgent, _ := reader.ReadString('\n')
	userAgent = strings.TrimSpace(userAgent)

	account := &auth.Account{
		Username:     username,
		SessionID:    sessionID,
		CSRFToken:    csrfToken,
		DSUserID:     dsUserID,
		UserAgent:    userAgent,
		LastModified: time.Now(),
	}

	if err := manager.Store(account); err != nil {
		fatal("Failed to store credentials", err)
	}

	fmt.Printf("\nCredentials stored for '%s'.\n", username)
	fmt.Println("\nQuick start:")
	fmt.Println("  Start the dashboard:")
	fmt.Println("  $ botinsta serve")
	fmt.Println("\n  Or run a job in the foreground:")
	fmt.Printf("  $ botinsta run %s --mode hashtag --tag sunset\n", username)
	fmt.Println("\nNever share your credentials or config files!")
}

func runLogout(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fatal("Failed to initialize credential manager", err)
	}

	if len(args) > 0 {
		username := instagram.SanitizeUsername(args[0])
		if err := manager.Delete(username); err != nil {
			fatal("Failed to remove account", err)
		}
		fmt.Println("Account removed:", username)
		return
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		fmt.Println("No stored accounts found.")
		return
	}

	reader := bufio.NewReader(os.Stdin)

	if len(accounts) == 1 {
		account := accounts[0]
		fmt.Printf("Remove account '%s'? (y/N): ", account.Username)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
		if err := manager.Delete(account.Username); err != nil {
			fatal("Failed to remove account", err)
		}
		fmt.Println("Account removed:", account.Username)
		return
	}

	fmt.Println("Select account to remove:")
	for i, account := range accounts {
		fmt.Printf("  %d. %s\n", i+1, account.Username)
	}
	fmt.Printf("  0. Cancel\n\n")

	fmt.Print("Choice: ")
	input, _ := reader.ReadString('\n')

	var choice int
	fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)

	if choice < 1 || choice > len(accounts) {
		return
	}

	account := accounts[choice-1]
	if err := manager.Delete(account.Username); err != nil {
		fatal("Failed to remove account", err)
	}
	fmt.Println("Account removed:", account.Username)
}

func runList(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fatal("Failed to initialize credential manager", err)
	}

	accounts, err := manager.List()
	if err != nil {
		fatal("Failed to list accounts", err)
	}

	if len(accounts) == 0 {
		fmt.Println("No stored accounts. Use 'botinsta auth login' to add one.")
		return
	}

	fmt.Println("Stored accounts:")
	fmt.Println()

	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Printf("%d. Username: %s\n", i+1, sanitized.Username)
		fmt.Printf("   Session ID: %s\n", sanitized.SessionID)
		fmt.Printf("   CSRF Token: %s\n", sanitized.CSRFToken)
		if sanitized.DSUserID != "" {
			fmt.Printf("   User ID: %s\n", sanitized.DSUserID)
		}
		if sanitized.UserAgent != "" {
			fmt.Printf("   User Agent: %s\n", sanitized.UserAgent)
		}
		fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
}

// readPassword reads a password from stdin without echoing
func readPassword() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return string(password), nil
		}
	}

	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func fatal(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	} else {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(1)
}
