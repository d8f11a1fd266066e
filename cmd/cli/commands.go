package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"wuwaguides/internal/app"
	"wuwaguides/internal/auth"
	"wuwaguides/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show when guides were last cached",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		if err := newAPI().getJSON(cmd.Context(), "/", &out); err != nil {
			return err
		}
		printJSON(cmd.OutOrStdout(), out)
		return nil
	},
}

var charactersCmd = &cobra.Command{
	Use:   "characters",
	Short: "List cached characters",
	RunE: func(cmd *cobra.Command, args []string) error {
		var chars []models.CharacterInfo
		if err := newAPI().getJSON(cmd.Context(), "/api/characters", &chars); err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tRARITY\tATTRIBUTE")
		for _, c := range chars {
			rarity := c.Rarity.String()
			if rarity == "" {
				rarity = "-"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.ID, orDash(c.Name), rarity, orDash(c.Attribute))
		}
		return tw.Flush()
	},
}

var guideCmd = &cobra.Command{
	Use:   "guide <name>",
	Short: "Print the cached guide for a character",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var doc map[string]any
		if err := newAPI().getJSON(cmd.Context(), "/api/guide/"+url.PathEscape(args[0]), &doc); err != nil {
			return err
		}
		printJSON(cmd.OutOrStdout(), doc)
		return nil
	},
}

var (
	flagSubject string
	flagSave    bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a trigger token with the server's configured secret",
	Long: `Sign a JWT carrying the trigger scope. The secret, issuer and lifetime come
from the same GUIDES_* configuration the server reads, so run this where that
configuration is available.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := app.Setup()
		if err != nil {
			return err
		}
		tok, exp, err := app.Tokens(cfg.Auth).Sign(flagSubject, auth.ScopeTrigger)
		if err != nil {
			return err
		}
		if flagSave {
			if err := saveToken(flagTokenFile, tok); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "saved to %s, expires %s\n", flagTokenFile, exp.Format(time.RFC3339))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var (
	flagToken string
	flagWatch bool
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Start a background guide refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		tok := flagToken
		if tok == "" {
			var err error
			if tok, err = readToken(flagTokenFile); err != nil {
				return fmt.Errorf("no token (use --token or `token --save`): %w", err)
			}
		}

		c := newAPI()

		// subscribe first so no event of the new run is missed
		var stream *eventStream
		if flagWatch {
			var err error
			if stream, err = c.events(); err != nil {
				return err
			}
			defer stream.Close()
		}

		var resp struct {
			Status  string `json:"status"`
			Message string `json:"message"`
			RunID   string `json:"run_id"`
		}
		if err := c.doJSON(cmd.Context(), http.MethodPost, "/api/cron/fetch-guides", tok, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (run %s)\n", resp.Message, resp.RunID)

		if stream == nil {
			return nil
		}
		return stream.follow(cmd.Context(), resp.RunID, cmd.OutOrStdout())
	},
}

func init() {
	tokenCmd.Flags().StringVar(&flagSubject, "subject", "cron", "token subject")
	tokenCmd.Flags().BoolVar(&flagSave, "save", false, "store the token in --token-file instead of printing it")

	triggerCmd.Flags().StringVar(&flagToken, "token", os.Getenv("GUIDES_TOKEN"), "bearer token (defaults to --token-file)")
	triggerCmd.Flags().BoolVar(&flagWatch, "watch", false, "follow the run's progress until it finishes")
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
