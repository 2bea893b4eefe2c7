package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/disneyvacation/wikihow-link-bot/internal/amp"
	"github.com/disneyvacation/wikihow-link-bot/internal/config"
	"github.com/disneyvacation/wikihow-link-bot/internal/platform"
	"github.com/joho/godotenv"
)

func main() {
	ampURL := flag.String("amp", "https://www.google.com/amp/s/www.wikihow.com/Take-a-Nap%3famp=1", "AMP page to resolve")
	flag.Parse()

	fmt.Println("🔍 WikiHowLink Bot - API Connectivity Test")
	fmt.Println("==========================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	reddit := platform.NewRedditClient(platform.Credentials{
		ClientID:     cfg.RedditClientID,
		ClientSecret: cfg.RedditClientSecret,
		Username:     cfg.RedditUsername,
		Password:     cfg.RedditPassword,
		UserAgent:    cfg.RedditUserAgent,
	})

	fmt.Println("\n📡 Testing Reddit...")
	fmt.Println(strings.Repeat("-", 40))

	for _, community := range cfg.Subreddits {
		fmt.Printf("🔸 Listing r/%s... ", community)
		posts, err := reddit.NewPosts(ctx, community, 5)
		if err != nil {
			fmt.Printf("❌ ERROR: %v\n", err)
			continue
		}
		fmt.Printf("✅ SUCCESS (%d posts)\n", len(posts))
		if len(posts) > 0 {
			fmt.Printf("   📝 Newest: \"%s\" by /u/%s, %s old\n",
				posts[0].Title, posts[0].Author, time.Since(posts[0].CreatedAt).Round(time.Second))
		}
	}

	fmt.Printf("🔸 Reading inbox... ")
	messages, err := reddit.UnreadMessages(ctx)
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
	} else {
		fmt.Printf("✅ SUCCESS (%d unread)\n", len(messages))
	}

	fmt.Println("\n📡 Testing AMP resolution...")
	fmt.Println(strings.Repeat("-", 40))

	fmt.Printf("🔸 Resolving %s... ", *ampURL)
	resolver := amp.NewResolver(amp.WithMaxDepth(cfg.AMPMaxDepth))
	if canonical, ok := resolver.Resolve(ctx, *ampURL); ok {
		fmt.Printf("✅ SUCCESS\n   📝 Canonical: %s\n", canonical)
	} else {
		fmt.Printf("⚠️  UNRESOLVED\n")
	}

	fmt.Println("\n✅ API connectivity test completed!")
}
