package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Another0Noob/animecatalog/internal/config"
	"github.com/Another0Noob/animecatalog/internal/logging"
	"github.com/Another0Noob/animecatalog/internal/match"
	"github.com/Another0Noob/animecatalog/internal/visual"
	"github.com/Another0Noob/animecatalog/internal/visualapi"
)

var lookupVisual bool

var matchCmd = &cobra.Command{
	Use:   "match <title>",
	Short: "Show how a title is normalized and matched",
	Long: `Print the base title, season number and slug derived from a raw title.
With --visual the title is also looked up on the visual source.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMatch(cmd.Context(), cfgFile, args[0], lookupVisual)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().BoolVarP(
		&lookupVisual,
		"visual",
		"v",
		false,
		"look the title up on the visual source",
	)
}

func runMatch(ctx context.Context, configPath, title string, lookup bool) error {
	p := match.Parse(title)
	kind := visual.KindOf(title)

	fmt.Printf("Base:   %s\n", p.Base)
	fmt.Printf("Season: %d\n", p.Seq)
	fmt.Printf("Slug:   %s\n", match.Slug(p.Base))
	fmt.Printf("Movie:  %t\n", match.IsMovie(title))
	fmt.Printf("Key:    %s\n", visual.Key(title, kind))

	if !lookup {
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer closer.Close()

	client := visualapi.NewClient(visualapi.Options{
		BaseURL:    cfg.Visual.BaseURL,
		DetailPath: cfg.Visual.DetailPath,
		Timeout:    cfg.Visual.Timeout,
		Logger:     logger,
	})
	fmt.Println("--- Searching visual source ---")

	rec, found, err := visual.NewBridge(client, logger).Resolve(ctx, title, kind, true)
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	if !found {
		fmt.Println("No match.")
		return nil
	}
	fmt.Printf("Title:  %s\n", rec.Title)
	fmt.Printf("ID:     %s\n", rec.VisualID)
	fmt.Printf("Poster: %s\n", rec.Poster)
	if rec.Description != "" {
		fmt.Printf("About:  %s\n", rec.Description)
	}
	return nil
}
