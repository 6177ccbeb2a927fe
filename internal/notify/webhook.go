// Package notify posts test lab updates to a Discord channel webhook.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	json "github.com/goccy/go-json"

	"testlab/internal/ingest"
	"testlab/internal/report"
)

const (
	// Embed colors
	colorGreen = 0x57F287 // group won at least half its games
	colorRed   = 0xE74C3C
	colorGrey  = 0x95A5A6 // nothing decided yet

	defaultWebhookTimeout = 10 * time.Second

	// Max attempts when Discord rate limits us
	maxRetries = 3
)

// NewResultsPayload summarizes an import and, when known, the newest test
// group's row of the group report.
func NewResultsPayload(stats ingest.Stats, latest *report.GroupRow, now time.Time) *discordgo.WebhookParams {
	embed := &discordgo.MessageEmbed{
		Title:     "Test results imported",
		Color:     colorGrey,
		Timestamp: now.UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Results", Value: strconv.Itoa(stats.Results), Inline: true},
			{Name: "Events", Value: strconv.Itoa(stats.Events), Inline: true},
		},
	}
	if stats.Duplicates > 0 || stats.Malformed > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Skipped",
			Value:  fmt.Sprintf("%d duplicate, %d malformed", stats.Duplicates, stats.Malformed),
			Inline: true,
		})
	}

	if latest != nil {
		embed.Description = fmt.Sprintf("Group **%d** (%s): win rate **%s**, average game **%s**",
			latest.TestGroupID, latest.Difficulty, latest.WinPercentage, report.FormatDuration(latest.AvgDuration))
		embed.Color = rateColor(latest.WinPercentage)
		embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d opponents played", played(latest))}
	}

	return &discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{embed}}
}

func rateColor(rate string) int {
	if rate == report.NoRate || len(rate) < 2 {
		return colorGrey
	}
	pct, err := strconv.ParseFloat(rate[:len(rate)-1], 64)
	if err != nil {
		return colorGrey
	}
	if pct >= 50 {
		return colorGreen
	}
	return colorRed
}

func played(row *report.GroupRow) int {
	n := 0
	for _, m := range row.Results {
		if m != nil {
			n++
		}
	}
	return n
}

// Webhook sends notifications to one Discord webhook URL
type Webhook struct {
	webhookURL string
	httpClient *http.Client
	now        func() time.Time
}

// NewWebhook creates a Webhook
func NewWebhook(webhookURL string) *Webhook {
	return &Webhook{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: defaultWebhookTimeout,
		},
		now: time.Now,
	}
}

// ResultsImported posts an import summary
func (w *Webhook) ResultsImported(ctx context.Context, stats ingest.Stats, latest *report.GroupRow) error {
	return w.send(ctx, NewResultsPayload(stats, latest, w.now()))
}

// send posts params, waiting out Discord's rate limit between attempts
func (w *Webhook) send(ctx context.Context, params *discordgo.WebhookParams) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		resp.Body.Close()

		// Discord answers 204 No Content unless ?wait=true
		if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
			return nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := time.Second
			if s, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil {
				wait = time.Duration(s * float64(time.Second))
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}

	return fmt.Errorf("webhook request failed after %d retries", maxRetries)
}
