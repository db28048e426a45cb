package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/dataflow/models"
)

func main() {
	apiURL := os.Getenv("DATAFLOW_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	client := newAPIClient(apiURL, os.Getenv("DATAFLOW_API_KEY"))

	s := newServer(client)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(client *apiClient) *server.MCPServer {
	s := server.NewMCPServer(
		"dataflow",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	scrapeTool := mcp.NewTool("scrape_page",
		mcp.WithDescription("Open a platform page in the local logged-in browser and extract structured records (title, price, sales, engagement, trend score, platform metrics)."),
		mcp.WithString("platform",
			mcp.Required(),
			mcp.Description("Platform identifier: douyin, xiaohongshu, taobao, wechat, chanmama, or any other id for generic extraction"),
		),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The page to scrape"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Serve a cached result younger than this many milliseconds (default: 0, no cache)"),
		),
	)
	s.AddTool(scrapeTool, handleScrape(client))

	videoTool := mcp.NewTool("generate_video",
		mcp.WithDescription("Generate a short video from a prompt and optional reference image. Blocks until the job finishes and returns a playable URI."),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("What the video should show"),
		),
		mcp.WithString("aspect_ratio",
			mcp.Description("Aspect ratio: '16:9' (default) or '9:16'"),
			mcp.Enum("16:9", "9:16"),
		),
		mcp.WithString("model",
			mcp.Description("Video model id (default: server configured model; 'local-ffmpeg' assembles the given images locally)"),
		),
		mcp.WithString("image",
			mcp.Description("Optional reference image: data URI, raw base64 or http(s) URL"),
		),
	)
	s.AddTool(videoTool, handleGenerateVideo(client))

	assembleTool := mcp.NewTool("assemble_video",
		mcp.WithDescription("Assemble an MP4 slideshow from still images with ffmpeg on the server machine."),
		mcp.WithArray("images",
			mcp.Required(),
			mcp.Description("Ordered images: data URIs, raw base64 or http(s) URLs"),
		),
		mcp.WithNumber("duration",
			mcp.Required(),
			mcp.Description("Total video length in seconds"),
		),
		mcp.WithNumber("fps",
			mcp.Description("Frame rate (default: 30)"),
		),
	)
	s.AddTool(assembleTool, handleAssemble(client))

	historyTool := mcp.NewTool("list_history",
		mcp.WithDescription("List recent scrape sessions, newest first."),
		mcp.WithString("platform",
			mcp.Description("Only sessions for this platform"),
		),
	)
	s.AddTool(historyTool, handleHistory(client))

	return s
}

func handleScrape(client *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		platform, err := request.RequireString("platform")
		if err != nil {
			return mcp.NewToolResultError("platform is required"), nil
		}
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		resp, err := client.scrape(ctx, models.ScrapeRequest{
			Platform: platform,
			URL:      url,
			MaxAge:   int(request.GetFloat("max_age", 0)),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("scrape failed: %v", err)), nil
		}

		var sb strings.Builder
		for i, r := range resp.Records {
			fmt.Fprintf(&sb, "--- [%d] %s (%s, confidence %s) ---\n", i+1, r.Title, r.CrawlingStatus, r.Confidence)
			fmt.Fprintf(&sb, "Price: %.2f  Sales: %.0f  Engagement: %.0f  Trend: %.0f\n", r.Price, r.Sales, r.Engagement, r.TrendScore)
			if r.Summary != "" {
				sb.WriteString(r.Summary + "\n")
			}
			if r.URL != "" {
				sb.WriteString("URL: " + r.URL + "\n")
			}
			sb.WriteString("\n")
		}
		raw, _ := json.MarshalIndent(resp.Records, "", "  ")
		sb.WriteString("---\n")
		sb.Write(raw)
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleGenerateVideo(client *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := request.RequireString("prompt")
		if err != nil {
			return mcp.NewToolResultError("prompt is required"), nil
		}

		job, err := client.generateVideo(ctx, models.VideoRequest{
			Prompt:      prompt,
			AspectRatio: models.AspectRatio(request.GetString("aspect_ratio", "")),
			Model:       request.GetString("model", ""),
			Image:       request.GetString("image", ""),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("video generation failed: %v", err)), nil
		}
		if job.Status != models.VideoStatusDone || job.Result == nil {
			msg := "job " + job.Status
			if job.Error != nil {
				msg = fmt.Sprintf("[%s] %s", job.Error.Code, job.Error.Message)
			}
			return mcp.NewToolResultError(msg), nil
		}

		text := fmt.Sprintf("Video ready (model %s)\nURI: %s", job.Result.Model, job.Result.URI)
		if job.Result.Demo {
			text += "\nNote: placeholder clip, the model does not generate real video."
		}
		return mcp.NewToolResultText(text), nil
	}
}

func handleAssemble(client *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		images, err := request.RequireStringSlice("images")
		if err != nil {
			return mcp.NewToolResultError("images is required and must be an array of strings"), nil
		}
		duration, err := request.RequireFloat("duration")
		if err != nil {
			return mcp.NewToolResultError("duration is required"), nil
		}

		resp, err := client.assemble(ctx, models.AssembleRequest{
			Images:   images,
			Duration: duration,
			FPS:      int(request.GetFloat("fps", 0)),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("assembly failed: %v", err)), nil
		}
		return mcp.NewToolResultText("Video written to " + resp.Path), nil
	}
}

func handleHistory(client *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := client.history(ctx, request.GetString("platform", ""))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("history failed: %v", err)), nil
		}
		if len(resp.Sessions) == 0 {
			return mcp.NewToolResultText("No scrape sessions yet."), nil
		}
		var sb strings.Builder
		for _, s := range resp.Sessions {
			fmt.Fprintf(&sb, "%s  %s  %-12s %-8s %d records  %s\n",
				s.ID, s.CreatedAt.Format("2006-01-02 15:04"), s.Platform, s.Status, s.ResultCount, s.URL)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
