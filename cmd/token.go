package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/listings/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a server running with auth.provider=jwt",
	RunE: func(cmd *cobra.Command, _ []string) error {
		uid, _ := cmd.Flags().GetString("uid")
		email, _ := cmd.Flags().GetString("email")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		return mintToken(cmd.OutOrStdout(), auth.Identity{UID: uid, Email: email}, ttl)
	},
}

func mintToken(out io.Writer, id auth.Identity, ttl time.Duration) error {
	if cfg.Auth.Provider != "jwt" {
		return eris.Errorf("token: auth provider is %q, tokens can only be minted for jwt", cfg.Auth.Provider)
	}
	if ttl <= 0 {
		return eris.New("token: --ttl must be positive")
	}
	v, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}
	tok, err := v.Issue(id, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}

func init() {
	tokenCmd.Flags().String("uid", "", "user id placed in the subject claim")
	tokenCmd.Flags().String("email", "", "optional email claim")
	tokenCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("uid")

	rootCmd.AddCommand(tokenCmd)
}
