package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/ion-go/internal/ion"
	"github.com/tonimelisma/ion-go/internal/session"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with ion in the browser",
		Long: `Open the ion authorization page, wait for the browser to redirect back,
and store the resulting access token. The asset access token for the
configured project is looked up or created right after.`,
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored access token",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated account",
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)

	is, err := NewIonSession(ctx, cc.Cfg.Config, cc.Logger, ionSessionOptions{
		OpenURL: browserOpener(cc.Err, cc.Logger, openBrowser),
	})
	if err != nil {
		return err
	}
	defer is.Close()

	s := is.Session

	if s.ReadCredential() != "" {
		if err := is.Resume(ctx); err == nil {
			cc.Statusf("Already logged in. Run 'ion-go logout' first to switch accounts.\n")
			return nil
		}

		cc.Logger.Info("stored credential unusable, starting a new login")
	}

	cc.Logger.Info("login started", slog.String("project", cc.Cfg.Ion.ProjectName))

	s.Connect()

	if err := is.Await(ctx, func() bool { return !s.IsConnecting() }); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if !s.IsConnected() {
		return fmt.Errorf("login: %w", s.LastError(session.KindConnection))
	}

	// Connect already started deriving the asset access token.
	if err := is.Load(ctx, session.KindAssetAccessToken, func() {}); err != nil {
		cc.Logger.Warn("asset access token not ready", slog.String("error", err.Error()))
		cc.Statusf("Warning: could not prepare asset access token %q: %v\n", s.TokenName(), err)
	}

	if err := is.Load(ctx, session.KindProfile, func() { s.GetProfile() }); err != nil {
		return fmt.Errorf("login: fetching profile: %w", err)
	}

	profile := s.GetProfile()

	cc.Logger.Info("login successful", slog.String("username", profile.Username))
	cc.Statusf("Logged in as %s.\n", profile.Username)

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	is, err := NewIonSession(cmd.Context(), cc.Cfg.Config, cc.Logger, ionSessionOptions{})
	if err != nil {
		return err
	}
	defer is.Close()

	if is.Session.ReadCredential() == "" {
		cc.Statusf("Not logged in.\n")
		return nil
	}

	// Disconnect erases the stored credential. The API token itself stays
	// valid on the server until revoked there.
	is.Session.Disconnect()

	cc.Logger.Info("logout successful")
	cc.Statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	StorageUsed   int64  `json:"storage_used"`
	StorageTotal  int64  `json:"storage_total"`
	TokenName     string `json:"token_name"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	is, err := NewIonSession(ctx, cc.Cfg.Config, cc.Logger, ionSessionOptions{})
	if err != nil {
		return err
	}
	defer is.Close()

	if err := is.Resume(ctx); err != nil {
		return err
	}

	s := is.Session

	if err := is.Load(ctx, session.KindProfile, func() { s.GetProfile() }); err != nil {
		return fmt.Errorf("fetching profile: %w", err)
	}

	profile := s.GetProfile()

	if cc.Flags.JSON {
		return printJSON(cc.Out, whoamiOutput{
			ID:            profile.ID,
			Username:      profile.Username,
			Email:         profile.Email,
			EmailVerified: profile.EmailVerified,
			StorageUsed:   profile.StorageUsed,
			StorageTotal:  profile.StorageTotal,
			TokenName:     s.TokenName(),
		})
	}

	printWhoamiText(cc.Out, profile, s.TokenName())

	return nil
}

func printWhoamiText(w io.Writer, p ion.Profile, tokenName string) {
	verified := ""
	if !p.EmailVerified {
		verified = " (unverified)"
	}

	fmt.Fprintf(w, "User:    %s\n", p.Username)
	fmt.Fprintf(w, "Email:   %s%s\n", p.Email, verified)
	fmt.Fprintf(w, "ID:      %d\n", p.ID)
	fmt.Fprintf(w, "Storage: %s / %s\n", formatSize(p.StorageUsed), formatSize(p.StorageTotal))
	fmt.Fprintf(w, "Token:   %s\n", tokenName)
}

// browserOpener returns the authorization URL handler for login. The URL is
// always printed, even with --quiet, since the user cannot sign in without
// it. A browser is launched only when stderr is a terminal.
func browserOpener(w io.Writer, logger *slog.Logger, launch func(string) error) func(string) error {
	return func(url string) error {
		fmt.Fprintf(w, "To sign in, visit: %s\n", url)

		if !isTerminal(w) {
			return nil
		}

		if err := launch(url); err != nil {
			logger.Debug("could not launch browser", slog.String("error", err.Error()))
		}

		return nil
	}
}

// openBrowser asks the desktop to open url. The launcher's own output is
// discarded so it cannot interleave with command output.
func openBrowser(url string) error {
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard

	if err := browser.OpenURL(url); err != nil {
		return fmt.Errorf("opening browser: %w", err)
	}

	return nil
}
