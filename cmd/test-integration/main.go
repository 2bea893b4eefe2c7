package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/disneyvacation/wikihow-link-bot/internal/amp"
	"github.com/disneyvacation/wikihow-link-bot/internal/config"
	"github.com/disneyvacation/wikihow-link-bot/internal/linkfix"
	"github.com/disneyvacation/wikihow-link-bot/internal/models"
	"github.com/disneyvacation/wikihow-link-bot/internal/moderation"
	"github.com/disneyvacation/wikihow-link-bot/internal/platform"
	"github.com/joho/godotenv"
)

// DryRunPlatform reads from Reddit but only prints the writes a sweep would make
type DryRunPlatform struct {
	platform.Platform
	writes int
}

func (d *DryRunPlatform) Reply(ctx context.Context, parentFullname, text string) (models.Comment, error) {
	d.writes++
	fmt.Printf("   💬 Would reply to %s:\n      %s\n", parentFullname, strings.ReplaceAll(text, "\n", "\n      "))
	return models.Comment{ID: "dryrun", Fullname: "t1_dryrun"}, nil
}

func (d *DryRunPlatform) Distinguish(ctx context.Context, fullname string, sticky bool) error {
	d.writes++
	fmt.Printf("   📌 Would distinguish %s (sticky=%t)\n", fullname, sticky)
	return nil
}

func (d *DryRunPlatform) Remove(ctx context.Context, fullname string) error {
	d.writes++
	fmt.Printf("   🗑️  Would remove %s\n", fullname)
	return nil
}

func (d *DryRunPlatform) Approve(ctx context.Context, fullname string) error {
	d.writes++
	fmt.Printf("   ✅ Would approve %s\n", fullname)
	return nil
}

func (d *DryRunPlatform) MarkRead(ctx context.Context, fullnames []string) error {
	if len(fullnames) > 0 {
		fmt.Printf("   📬 Would mark %d messages read\n", len(fullnames))
	}
	return nil
}

func (d *DryRunPlatform) SendMessage(ctx context.Context, to, subject, text string) error {
	fmt.Printf("   ✉️  Would message /u/%s: %s\n", to, subject)
	return nil
}

// PrintRecorder prints outcome log lines instead of writing the log file
type PrintRecorder struct{}

func (PrintRecorder) Record(outcome models.Outcome, post models.Post) {
	if label := outcome.LogLabel(); label != "" {
		fmt.Printf("   📒 %s - %s (%s)\n", label, post.Title, post.URL())
	}
}

func main() {
	fmt.Println("🧪 WikiHowLink Bot - Dry Run Sweep")
	fmt.Println("==================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	reddit := platform.NewRedditClient(platform.Credentials{
		ClientID:     cfg.RedditClientID,
		ClientSecret: cfg.RedditClientSecret,
		Username:     cfg.RedditUsername,
		Password:     cfg.RedditPassword,
		UserAgent:    cfg.RedditUserAgent,
	})
	dryRun := &DryRunPlatform{Platform: reddit}

	service := moderation.NewService(
		dryRun,
		linkfix.NewNormalizer(amp.NewResolver(amp.WithMaxDepth(cfg.AMPMaxDepth))),
		linkfix.NewPolicy(cfg.CitationDomains),
		PrintRecorder{},
		moderation.Options{
			Bot:          moderation.BotIdentity(cfg.BotUsername),
			Communities:  cfg.Subreddits,
			Moderators:   cfg.Moderators,
			ReminderText: cfg.ReminderText,
			PostLimit:    cfg.PostLimit,
			MinPostAge:   cfg.MinPostAge,
			MaxPostAge:   cfg.MaxPostAge,
		},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Printf("\n🔄 Sweeping r/%s (posts aged %s to %s)...\n",
		strings.Join(cfg.Subreddits, "+"), cfg.MinPostAge, cfg.MaxPostAge)

	result, err := service.Sweep(ctx)
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Printf("📊 Posts fetched:   %d\n", result.PostsFetched)
	fmt.Printf("📊 Posts in window: %d\n", result.PostsInBand)
	for outcome, count := range result.Outcomes {
		fmt.Printf("   • %-22s %d\n", string(outcome)+":", count)
	}
	fmt.Printf("📊 Inbox read:      %d (%d re-approved)\n", result.InboxRead, result.Reapproved)
	fmt.Printf("📊 Writes skipped:  %d\n", dryRun.writes)
	fmt.Println("\n✅ Dry run completed!")
}
