package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ArticlePoster/internal/domain"
)

var (
	generateGenre       string
	generateUser        string
	generateSiteName    string
	generateSiteURL     string
	generateUsername    string
	generateAppPassword string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a batch of articles for a genre and site",
	Long:  "Register (or reuse) the target WordPress site, generate long-tail keywords for the genre, and write one pending article per keyword.",
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateGenre, "genre", "", "Content genre to generate keywords for")
	generateCmd.Flags().StringVar(&generateUser, "user", "local", "Owning user id")
	generateCmd.Flags().StringVar(&generateSiteName, "site-name", "", "Display name of the WordPress site")
	generateCmd.Flags().StringVar(&generateSiteURL, "site-url", "", "Base URL of the WordPress site")
	generateCmd.Flags().StringVar(&generateUsername, "wp-username", "", "WordPress username")
	generateCmd.Flags().StringVar(&generateAppPassword, "wp-app-password", "", "WordPress application password")
	_ = generateCmd.MarkFlagRequired("genre")
	_ = generateCmd.MarkFlagRequired("site-url")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	application, _, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	site, err := application.Store().Upsert(ctx, domain.Site{
		UserID:        generateUser,
		Name:          generateSiteName,
		WPURL:         generateSiteURL,
		WPUsername:    generateUsername,
		WPAppPassword: generateAppPassword,
	})
	if err != nil {
		return fmt.Errorf("register site: %w", err)
	}

	count, err := application.Generator().GenerateBatch(ctx, generateGenre, site.ID, generateUser)
	if err != nil {
		return err
	}

	fmt.Printf("Generated %d pending articles for site %s\n", count, site.ID)
	return nil
}
