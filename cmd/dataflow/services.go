package main

import (
	"net/http"

	"github.com/use-agent/dataflow/browser"
	"github.com/use-agent/dataflow/config"
	"github.com/use-agent/dataflow/extract"
	"github.com/use-agent/dataflow/fetch"
	"github.com/use-agent/dataflow/llm"
	"github.com/use-agent/dataflow/media"
	"github.com/use-agent/dataflow/models"
	"github.com/use-agent/dataflow/scrape"
	"github.com/use-agent/dataflow/video"
)

// services are the orchestrators shared by every command.
type services struct {
	backend   *browser.RodBackend
	scraper   *scrape.Orchestrator
	video     *video.Orchestrator
	assembler *media.Assembler
	settings  models.Settings
}

func newServices(cfg *config.Config) *services {
	hc := &http.Client{Timeout: cfg.LLM.Timeout}
	text := llm.NewTextGenerator(cfg.LLM, hc)
	fetcher := fetch.New(cfg.Browser.DefaultProxy)

	backend := browser.NewRodBackend(cfg.Browser, cfg.Scraper, browser.DefaultRegistry())
	adapter := extract.NewAdapter(text, cfg.LLM.TextModel, extract.WithDedupe(cfg.Scraper.DedupeDistance))
	scraper := scrape.New(backend, adapter, cfg.Scraper,
		scrape.WithProfilePerPlatform(cfg.Browser.ProfilePerPlatform),
	)

	assembler := media.NewAssembler(cfg.Media, media.FFmpeg{Bin: cfg.Media.FFmpegBin}, fetcher)
	vid := video.New(llm.NewGemini(cfg.Video.BaseURL, hc), cfg.Video,
		video.WithAssembler(assembler),
		video.WithFetcher(fetcher),
		video.WithTextModel(text, cfg.LLM.TextModel),
	)

	return &services{
		backend:   backend,
		scraper:   scraper,
		video:     vid,
		assembler: assembler,
		settings: models.Settings{
			Credentials: models.Credentials{APIKey: cfg.LLM.APIKey},
			ProfileDir:  cfg.Browser.ProfileDir,
			UserAgent:   cfg.Browser.UserAgent,
		},
	}
}
