// Command listing-tool drives listing generation, the history and the image
// studio from the terminal, sharing the server's configuration and store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/raine/tix-seo-studio/config"
	"github.com/raine/tix-seo-studio/internal/history"
	"github.com/raine/tix-seo-studio/internal/listing"
	"github.com/raine/tix-seo-studio/internal/llm"
	"github.com/raine/tix-seo-studio/internal/media"
	"github.com/raine/tix-seo-studio/internal/policy"
	"github.com/raine/tix-seo-studio/internal/storage"
	"github.com/raine/tix-seo-studio/internal/studio"
	"github.com/raine/tix-seo-studio/internal/web"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
)

var (
	verbose bool
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "listing-tool",
	Short:         "Generate TIX listings from the command line",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

		if cmd.Name() == "policy" {
			return nil
		}

		config.LoadEnvFile()
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	generateCmd.Flags().StringP("merchant", "m", "", "Merchant identifier")
	generateCmd.Flags().StringP("name", "n", "", "Product name (required)")
	generateCmd.Flags().String("notes", "", "Merchant notes")
	generateCmd.Flags().StringP("image", "i", "", "Image file path or http(s) URL")
	generateCmd.Flags().Bool("json", false, "Print the raw result as JSON")
	_ = generateCmd.MarkFlagRequired("name")

	historyListCmd.Flags().StringP("merchant", "m", "", "Only show this merchant")
	historyCmd.AddCommand(historyListCmd, historyClearCmd)

	studioCmd.Flags().StringP("image", "i", "", "Image file path or http(s) URL (required)")
	studioCmd.Flags().StringP("scene", "s", "", "Lifestyle scene description")
	studioCmd.Flags().StringP("out", "o", "studio.png", "Output file")
	_ = studioCmd.MarkFlagRequired("image")

	rootCmd.AddCommand(generateCmd, historyCmd, studioCmd, policyCmd, storeCmd)
}

func openMemory() (*history.Memory, func(), error) {
	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	memory, err := history.NewMemory(store)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return memory, func() { store.Close() }, nil
}

func newClient(ctx context.Context) (*llm.GeminiClient, error) {
	pol, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}
	models, err := llm.NewGenAIModels(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, err
	}
	opts := []llm.Option{
		llm.WithTextTimeout(cfg.GenerationTimeout),
		llm.WithImageTimeout(cfg.ImageTimeout),
	}
	if cfg.VisionProvider == "openai" {
		opts = append(opts, llm.WithVisualAnalyzer(llm.NewOpenAIVision(cfg.OpenAIAPIKey, pol.VisionPrompt)))
	}
	return llm.NewGeminiClient(models, pol, opts...), nil
}

func loadImage(ctx context.Context, ref string) (*media.Image, error) {
	if ref == "" {
		return nil, nil
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return media.NewDownloader().Download(ctx, ref)
	}
	return media.ReadFile(ref)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a listing and record it in the history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		merchant, _ := cmd.Flags().GetString("merchant")
		name, _ := cmd.Flags().GetString("name")
		notes, _ := cmd.Flags().GetString("notes")
		imageRef, _ := cmd.Flags().GetString("image")
		asJSON, _ := cmd.Flags().GetBool("json")

		img, err := loadImage(ctx, imageRef)
		if err != nil {
			return err
		}

		memory, closeStore, err := openMemory()
		if err != nil {
			return err
		}
		defer closeStore()

		client, err := newClient(ctx)
		if err != nil {
			return err
		}

		logs, err := web.NewListingLog(cfg.LogDir)
		if err != nil {
			log.Warn().Err(err).Msg("listing log disabled")
		}
		svc := web.NewListingService(memory, client, logs)

		out, err := svc.Generate(ctx, listing.ProductInput{MerchantID: merchant, Name: name, Notes: notes, Image: img})
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			return enc.Encode(out.Result)
		}
		printOutcome(cmd, out)
		return nil
	},
}

func printOutcome(cmd *cobra.Command, out *web.Outcome) {
	w := cmd.OutOrStdout()
	fb := out.Result.MerchantFeedback
	fmt.Fprintf(w, "Status: %s (SEO %d, GEO %d)\n", out.Result.Status, fb.SEOScore, fb.GEOScore)
	if fb.Summary != "" {
		fmt.Fprintf(w, "Summary: %s\n", fb.Summary)
	}

	if !out.Result.Approved() {
		for _, issue := range fb.CriticalIssues {
			fmt.Fprintf(w, "  - %s\n", issue)
		}
		return
	}

	c := out.Result.ListingContent
	fmt.Fprintf(w, "\n%s\n\n", c.Title)
	if c.TrustSnippet != "" {
		fmt.Fprintf(w, "%s\n\n", c.TrustSnippet)
	}
	for _, p := range c.Paragraphs() {
		fmt.Fprintf(w, "%s\n\n", p)
	}
	for _, h := range c.Highlights {
		fmt.Fprintf(w, "  • %s\n", h)
	}
	for _, e := range c.TechnicalSpecifications.Entries() {
		fmt.Fprintf(w, "  %s: %s\n", e.Label, e.Value)
	}
	if out.Derived != nil {
		fmt.Fprintf(w, "\nSlug: /%s\nMeta: %s\n", out.Derived.URLSlug, out.Derived.MetaDescription)
	}
	for _, src := range out.Result.GroundingSources {
		fmt.Fprintf(w, "Source: %s <%s>\n", src.Title, src.URI)
	}
	if out.PriorCount > 0 {
		fmt.Fprintf(w, "\n(%d earlier versions were sent to the model)\n", out.PriorCount)
	}
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or clear the generation history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded listings, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		merchant, _ := cmd.Flags().GetString("merchant")

		memory, closeStore, err := openMemory()
		if err != nil {
			return err
		}
		defer closeStore()

		records := memory.Records()
		w := cmd.OutOrStdout()
		shown := 0
		for _, r := range records {
			if merchant != "" && r.MerchantID != merchant {
				continue
			}
			fmt.Fprintf(w, "%s  %-16s %-24s %s\n", r.CreatedAt().Format(time.DateTime), r.MerchantID, r.ProductName, r.Title)
			shown++
		}
		fmt.Fprintf(w, "%d of %d records\n", shown, len(records))
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every history record",
	RunE: func(cmd *cobra.Command, args []string) error {
		memory, closeStore, err := openMemory()
		if err != nil {
			return err
		}
		defer closeStore()

		n := memory.Len()
		if err := memory.Clear(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d records\n", n)
		return nil
	},
}

var studioCmd = &cobra.Command{
	Use:       "studio white|lifestyle",
	Short:     "Render a studio variant of a product photo",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(studio.ModeWhite), string(studio.ModeLifestyle)},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		mode, err := studio.ParseMode(args[0])
		if err != nil {
			return err
		}
		imageRef, _ := cmd.Flags().GetString("image")
		scene, _ := cmd.Flags().GetString("scene")
		outPath, _ := cmd.Flags().GetString("out")

		img, err := loadImage(ctx, imageRef)
		if err != nil {
			return err
		}

		client, err := newClient(ctx)
		if err != nil {
			return err
		}
		log.Debug().Str("policy", client.Policy().Version).Str("model", client.Policy().Models.Image).Msg("rendering studio image")

		dataURL, err := studio.New(client, client.Policy().Studio).Render(ctx, mode, img, scene)
		if err != nil {
			return err
		}
		out, err := media.ParseDataURL(dataURL)
		if err != nil {
			return err
		}
		if err := os.WriteFile(outPath, out.Data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s, %d bytes)\n", outPath, out.MIMEType, len(out.Data))
		return nil
	},
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Print the embedded generation policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := cmd.OutOrStdout().Write(policy.DefaultYAML)
		return err
	},
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "List the raw keys in the state database",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer store.Close()

		entries, err := store.All()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, e := range entries {
			fmt.Fprintf(w, "%-24s %8d bytes  %s\n", e.Key, len(e.Value), e.UpdatedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}
