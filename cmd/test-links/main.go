package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/disneyvacation/wikihow-link-bot/internal/amp"
	"github.com/disneyvacation/wikihow-link-bot/internal/config"
	"github.com/disneyvacation/wikihow-link-bot/internal/linkfix"
	"github.com/joho/godotenv"
)

// test-links shows how the bot would answer comments without touching
// Reddit. Each argument, or each stdin line when there are none, is treated
// as a comment body.
func main() {
	resolve := flag.Bool("resolve", true, "fetch AMP pages to find their canonical link")
	reapproval := flag.Bool("reapproval", false, "format replies as re-approval sources")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	domains := strings.Split(os.Getenv("CITATION_DOMAINS"), ",")
	if os.Getenv("CITATION_DOMAINS") == "" {
		domains = []string{"wikihow.com"}
	}
	depth := 3
	if cfg, err := config.Load(); err == nil {
		domains = cfg.CitationDomains
		depth = cfg.AMPMaxDepth
	}

	var resolver linkfix.Resolver
	if *resolve {
		resolver = amp.NewResolver(amp.WithMaxDepth(depth))
	}
	normalizer := linkfix.NewNormalizer(resolver)
	policy := linkfix.NewPolicy(domains)

	bodies := flag.Args()
	if len(bodies) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				bodies = append(bodies, line)
			}
		}
		if err := scanner.Err(); err != nil {
			log.Fatalf("Failed to read stdin: %v", err)
		}
	}

	fmt.Println("🔗 WikiHowLink Bot - Link Dry Run")
	fmt.Println(strings.Repeat("=", 70))

	for _, body := range bodies {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		printResult(ctx, normalizer, policy, body, *reapproval)
		cancel()
	}
}

func printResult(ctx context.Context, normalizer *linkfix.Normalizer, policy *linkfix.Policy, body string, reapproval bool) {
	decoded := linkfix.DecodeText(body)
	fmt.Printf("\n📝 %s\n", body)

	result, ok := normalizer.Classify(ctx, decoded)
	if !ok {
		fmt.Println("   ❌ no link found")
		return
	}

	fmt.Printf("   • Link:      %s\n", result.RawURL)
	fmt.Printf("   • Form:      %s\n", result.Form)
	fmt.Printf("   • Citation:  %t\n", policy.ContainsCitation(decoded))
	if result.Canonical != "" {
		fmt.Printf("   • Canonical: %s\n", result.Canonical)
	}

	if reply := normalizer.Normalize(ctx, decoded, reapproval); reply != "" {
		fmt.Printf("   💬 Reply:    %s\n", reply)
	} else {
		fmt.Println("   ✅ no correction needed")
	}
}
