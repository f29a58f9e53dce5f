package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/ion-go/internal/ion"
	"github.com/tonimelisma/ion-go/internal/session"
)

func newAssetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assets",
		Short: "List assets on the account",
		RunE:  runAssets,
	}
}

func newAssetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset <tileset-id>",
		Short: "Resolve a tileset (and optional imagery) with the asset access token",
		Long: `Check that a tileset asset exists, optionally together with an imagery
asset to drape over it, and print what a renderer needs to stream them:
the asset records and the asset access token.`,
		Args: cobra.ExactArgs(1),
		RunE: runAsset,
	}

	cmd.Flags().Int64("imagery", -1, "imagery asset id to drape over the tileset (negative for none)")

	return cmd
}

func newTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens",
		Short: "List API tokens on the account",
		RunE:  runTokens,
	}
}

func newAssetTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "asset-token",
		Short: "Print the project's asset access token, creating it if needed",
		RunE:  runAssetToken,
	}
}

// assetJSON is the JSON schema for one asset.
type assetJSON struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	PercentComplete int       `json:"percent_complete"`
	Bytes           int64     `json:"bytes"`
	Attribution     string    `json:"attribution,omitempty"`
	DateAdded       time.Time `json:"date_added"`
}

func toAssetJSON(a ion.Asset) assetJSON {
	return assetJSON{
		ID:              a.ID,
		Name:            a.Name,
		Type:            a.Type,
		Status:          a.Status,
		PercentComplete: a.PercentComplete,
		Bytes:           a.Bytes,
		Attribution:     a.Attribution,
		DateAdded:       a.DateAdded,
	}
}

// tokenJSON is the JSON schema for one token. Value is included only for
// the asset access token.
type tokenJSON struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Value     string   `json:"value,omitempty"`
	Scopes    []string `json:"scopes"`
	AssetIDs  []int64  `json:"asset_ids,omitempty"`
	IsDefault bool     `json:"is_default"`
}

func runAssets(cmd *cobra.Command, _ []string) error {
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

	if err := is.Load(ctx, session.KindAssetList, func() { s.GetAssets() }); err != nil {
		return fmt.Errorf("listing assets: %w", err)
	}

	assets := s.GetAssets()

	if cc.Flags.JSON {
		out := make([]assetJSON, 0, len(assets.Items))
		for _, a := range assets.Items {
			out = append(out, toAssetJSON(a))
		}

		return printJSON(cc.Out, out)
	}

	if len(assets.Items) == 0 {
		cc.Statusf("No assets.\n")
		return nil
	}

	printAssetsTable(cc.Out, assets.Items)

	if assets.NextPage != "" {
		cc.Statusf("Showing the first %d assets.\n", len(assets.Items))
	}

	return nil
}

func printAssetsTable(w io.Writer, assets []ion.Asset) {
	rows := make([][]string, 0, len(assets))

	for _, a := range assets {
		rows = append(rows, []string{
			strconv.FormatInt(a.ID, 10),
			a.Name,
			a.Type,
			assetStatus(a),
			formatSize(a.Bytes),
			formatTime(a.DateAdded),
		})
	}

	printTable(w, []string{"ID", "NAME", "TYPE", "STATUS", "SIZE", "ADDED"}, rows)
}

// assetStatus shows progress for assets still being processed.
func assetStatus(a ion.Asset) string {
	if a.Status == "IN_PROGRESS" {
		return fmt.Sprintf("%s %d%%", a.Status, a.PercentComplete)
	}

	return a.Status
}

func runTokens(cmd *cobra.Command, _ []string) error {
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

	// Resume already requested the list for the asset access token.
	load := func() {
		if !s.IsLoadingTokenList() {
			s.GetTokens()
		}
	}

	if err := is.Load(ctx, session.KindTokenList, load); err != nil {
		return fmt.Errorf("listing tokens: %w", err)
	}

	tokens := s.GetTokens()

	if cc.Flags.JSON {
		out := make([]tokenJSON, 0, len(tokens))
		for _, t := range tokens {
			out = append(out, tokenJSON{
				ID:        t.ID,
				Name:      t.Name,
				Scopes:    t.Scopes,
				AssetIDs:  t.AssetIDs,
				IsDefault: t.IsDefault,
			})
		}

		return printJSON(cc.Out, out)
	}

	rows := make([][]string, 0, len(tokens))
	for _, t := range tokens {
		marker := ""
		if t.Name == s.TokenName() {
			marker = "*"
		}

		rows = append(rows, []string{
			marker,
			t.Name,
			t.ID,
			strings.Join(t.Scopes, ","),
			maskToken(t.Value),
			formatTime(t.DateLastUsed),
		})
	}

	printTable(cc.Out, []string{"", "NAME", "ID", "SCOPES", "VALUE", "LAST USED"}, rows)

	return nil
}

func runAssetToken(cmd *cobra.Command, _ []string) error {
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

	// A verified resume derives the token on its own.
	if err := is.Load(ctx, session.KindAssetAccessToken, func() {}); err != nil {
		return fmt.Errorf("preparing asset access token %q: %w", s.TokenName(), err)
	}

	tok := s.GetAssetAccessToken()

	if cc.Flags.JSON {
		return printJSON(cc.Out, tokenJSON{
			ID:        tok.ID,
			Name:      tok.Name,
			Value:     tok.Value,
			Scopes:    tok.Scopes,
			AssetIDs:  tok.AssetIDs,
			IsDefault: tok.IsDefault,
		})
	}

	cc.Statusf("Token %q (%s)\n", tok.Name, tok.ID)
	fmt.Fprintln(cc.Out, tok.Value)

	return nil
}

// assetSourceJSON is the JSON schema for `asset --json`.
type assetSourceJSON struct {
	Tileset assetJSON  `json:"tileset"`
	Imagery *assetJSON `json:"imagery,omitempty"`
	Token   string     `json:"token"`
}

func runAsset(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	tilesetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || tilesetID < 0 {
		return fmt.Errorf("invalid tileset id %q", args[0])
	}

	imageryID, err := cmd.Flags().GetInt64("imagery")
	if err != nil {
		return err
	}

	is, err := NewIonSession(ctx, cc.Cfg.Config, cc.Logger, ionSessionOptions{})
	if err != nil {
		return err
	}
	defer is.Close()

	if err := is.Resume(ctx); err != nil {
		return err
	}

	var (
		src     session.AssetSource
		srcErr  error
		settled bool
	)

	is.Session.PrepareAssetSource(tilesetID, imageryID, func(as session.AssetSource, err error) {
		src, srcErr, settled = as, err, true
	})

	if err := is.Await(ctx, func() bool { return settled }); err != nil {
		return err
	}

	if srcErr != nil {
		if errors.Is(srcErr, ion.ErrNotFound) {
			return fmt.Errorf("asset not found: %w", srcErr)
		}

		return srcErr
	}

	if cc.Flags.JSON {
		out := assetSourceJSON{Tileset: toAssetJSON(src.Tileset), Token: src.Token}

		if src.Imagery != nil {
			img := toAssetJSON(*src.Imagery)
			out.Imagery = &img
		}

		return printJSON(cc.Out, out)
	}

	printAssetSource(cc.Out, src)

	return nil
}

func printAssetSource(w io.Writer, src session.AssetSource) {
	fmt.Fprintf(w, "Tileset: %d %s (%s, %s)\n", src.Tileset.ID, src.Tileset.Name, src.Tileset.Type, assetStatus(src.Tileset))

	if src.Imagery != nil {
		fmt.Fprintf(w, "Imagery: %d %s (%s, %s)\n", src.Imagery.ID, src.Imagery.Name, src.Imagery.Type, assetStatus(*src.Imagery))
	}

	fmt.Fprintf(w, "Token:   %s\n", maskToken(src.Token))
}
