package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/marcelsud/webhook-outbox/subscriptions"
)

/* validate-webhooks - Standalone CLI tool to validate webhooks.yaml
 * Usage: go run cmd/validate-webhooks/main.go [webhooks.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	webhooksFile := "webhooks.yaml"
	if len(os.Args) > 1 {
		webhooksFile = os.Args[1]
	}

	fmt.Printf("Validating webhooks file: %s\n", webhooksFile)

	loader := subscriptions.NewLoader()
	if err := loader.Load(webhooksFile); err != nil {
		fmt.Fprintf(os.Stderr, "VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	webhooks := loader.List()
	fmt.Printf("VALIDATION PASSED\n\n")
	fmt.Printf("Loaded %d webhook(s):\n", len(webhooks))

	for i, wh := range webhooks {
		fmt.Printf("\n%d. Webhook: %s\n", i+1, wh.ID)
		fmt.Printf("   URL:         %s\n", wh.URL)
		fmt.Printf("   Event Types: %s\n", strings.Join(wh.EventTypes, ", "))
		if wh.Description != "" {
			fmt.Printf("   Description: %s\n", wh.Description)
		}
	}

	fmt.Printf("\nAll webhooks are valid!\n")
	os.Exit(0)
}
