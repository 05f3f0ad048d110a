package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"support-chat/config"
	"support-chat/internal/services"
)

var (
	tokenUser  string
	tokenEmail string
	tokenTTL   time.Duration
	tokenSave  bool
)

// tokenCmd mints a development token with the server's JWT_SECRET. In
// production tokens come from the auth provider.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		id := uuid.New()
		if tokenUser != "" {
			parsed, err := uuid.Parse(tokenUser)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			id = parsed
		}

		cfg := config.LoadConfig()
		tok, err := services.SignAccessToken([]byte(cfg.JWTSecret), id, tokenEmail, tokenTTL)
		if err != nil {
			return err
		}

		if tokenSave {
			cliCfg, err := loadCLIConfig()
			if err != nil {
				return err
			}
			cliCfg.Auth.Token = tok
			if err := saveCLIConfig(cliCfg); err != nil {
				return err
			}
			fmt.Printf("Saved token for user %s\n", id)
			return nil
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (random when empty)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	tokenCmd.Flags().BoolVar(&tokenSave, "save", false, "store the token in the CLI config instead of printing it")
	rootCmd.AddCommand(tokenCmd)
}
