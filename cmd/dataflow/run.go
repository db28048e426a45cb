package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/dataflow/models"
)

var (
	scrapeUserAgent string
	scrapeAPIKey    string

	videoAspect string
	videoModel  string
	videoImage  string
	videoImages []string
	videoSecs   int

	assembleDuration float64
	assembleFPS      int
	assembleOutput   string
)

func init() {
	scrapeCmd := &cobra.Command{
		Use:   "scrape PLATFORM URL",
		Short: "Scrape one page with the logged-in browser profile and print records as JSON",
		Args:  cobra.ExactArgs(2),
		RunE:  runScrape,
	}
	scrapeCmd.Flags().StringVar(&scrapeUserAgent, "user-agent", "", "override the browser user agent")
	scrapeCmd.Flags().StringVar(&scrapeAPIKey, "api-key", "", "model API key (default: configured key)")
	rootCmd.AddCommand(scrapeCmd)

	videoCmd := &cobra.Command{
		Use:   "video PROMPT",
		Short: "Generate a video and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runVideo,
	}
	videoCmd.Flags().StringVar(&videoAspect, "aspect", "16:9", "aspect ratio: 16:9 or 9:16")
	videoCmd.Flags().StringVar(&videoModel, "model", "", "video model id (default: configured model)")
	videoCmd.Flags().StringVar(&videoImage, "image", "", "reference image: file, URL, data URI or base64")
	videoCmd.Flags().StringSliceVar(&videoImages, "images", nil, "stills for the local assembly model")
	videoCmd.Flags().IntVar(&videoSecs, "duration", 5, "length in seconds")
	rootCmd.AddCommand(videoCmd)

	assembleCmd := &cobra.Command{
		Use:   "assemble IMAGE...",
		Short: "Assemble still images into an MP4",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAssemble,
	}
	assembleCmd.Flags().Float64Var(&assembleDuration, "duration", 10, "total length in seconds")
	assembleCmd.Flags().IntVar(&assembleFPS, "fps", 30, "frame rate")
	assembleCmd.Flags().StringVarP(&assembleOutput, "output", "o", "", "output file (default: timestamped file in the output dir)")
	rootCmd.AddCommand(assembleCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "check-key",
		Short: "Check that the configured API key can reach the model service",
		Args:  cobra.NoArgs,
		RunE:  runCheckKey,
	})
}

// signalContext is canceled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc := newServices(cfg)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	settings := svc.settings
	if scrapeAPIKey != "" {
		settings.Credentials.APIKey = scrapeAPIKey
	}
	start := time.Now()
	records := svc.scraper.Scrape(ctx, models.ScrapeRequest{
		Platform:  args[0],
		URL:       args[1],
		UserAgent: scrapeUserAgent,
	}, settings)

	return printJSON(cmd.OutOrStdout(), models.ScrapeResponse{
		Success: true,
		Records: records,
		Timing:  models.TimingInfo{TotalMs: time.Since(start).Milliseconds()},
	})
}

func runVideo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc := newServices(cfg)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	req := models.VideoRequest{
		Prompt:      args[0],
		AspectRatio: models.AspectRatio(videoAspect),
		Model:       videoModel,
		Image:       videoImage,
		Images:      videoImages,
		Duration:    videoSecs,
	}
	observe := func(status string) {
		fmt.Fprintln(cmd.ErrOrStderr(), "status:", status)
	}
	res, err := svc.video.Run(ctx, req, svc.settings.Credentials, observe)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runAssemble(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc := newServices(cfg)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	path, err := svc.assembler.Assemble(ctx, models.AssembleRequest{
		Images:     args,
		Duration:   assembleDuration,
		FPS:        assembleFPS,
		OutputPath: assembleOutput,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), models.AssembleResponse{Success: true, Path: path, URI: "file://" + path})
}

func runCheckKey(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc := newServices(cfg)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if err := svc.video.Validate(ctx, svc.settings.Credentials); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}
