package subscriptions

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/marcelsud/webhook-outbox/webhook"
	"github.com/marcelsud/webhook-outbox/webhook/signature"
	"gopkg.in/yaml.v3"
)

/* Loader seeds webhook subscriptions from webhooks.yaml
 * Entries carry a stable id so repeated startups are idempotent
 */

// Config represents the structure of webhooks.yaml
type Config struct {
	Webhooks []SubscriptionConfig `yaml:"webhooks"`
}

// SubscriptionConfig represents a single webhook in the YAML file
type SubscriptionConfig struct {
	ID          string   `yaml:"id"`
	URL         string   `yaml:"url"`
	Description string   `yaml:"description"`
	EventTypes  []string `yaml:"event_types"`
	Secret      string   `yaml:"secret"` // Optional: generated when empty
}

// Loader holds the loaded subscriptions
type Loader struct {
	subscriptions map[string]webhook.Webhook
}

// NewLoader creates a new subscription loader
func NewLoader() *Loader {
	return &Loader{
		subscriptions: make(map[string]webhook.Webhook),
	}
}

// Load reads and parses the webhooks.yaml file
func (l *Loader) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading webhooks file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing webhooks YAML: %w", err)
	}

	now := time.Now().UTC()
	for _, sc := range config.Webhooks {
		if sc.ID == "" {
			return fmt.Errorf("webhook entry for %q is missing an id", sc.URL)
		}
		if _, dup := l.subscriptions[sc.ID]; dup {
			return fmt.Errorf("duplicate webhook id: %s", sc.ID)
		}

		secret := sc.Secret
		if secret == "" {
			secret, err = signature.GenerateSecret()
			if err != nil {
				return fmt.Errorf("generating secret for %s: %w", sc.ID, err)
			}
		}

		wh := webhook.Webhook{
			ID:          sc.ID,
			URL:         sc.URL,
			Secret:      secret,
			Description: sc.Description,
			EventTypes:  sc.EventTypes,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := wh.Validate(); err != nil {
			return fmt.Errorf("validating webhook %s: %w", sc.ID, err)
		}

		l.subscriptions[wh.ID] = wh
	}

	return nil
}

// Get retrieves a loaded subscription by its ID
func (l *Loader) Get(id string) (webhook.Webhook, error) {
	wh, exists := l.subscriptions[id]
	if !exists {
		return webhook.Webhook{}, fmt.Errorf("webhook not found: %s", id)
	}
	return wh, nil
}

// List returns all loaded subscriptions
func (l *Loader) List() []webhook.Webhook {
	whs := make([]webhook.Webhook, 0, len(l.subscriptions))
	for _, wh := range l.subscriptions {
		whs = append(whs, wh)
	}
	return whs
}

/* Seed stores every loaded subscription that isn't already registered.
 * Existing webhooks keep their state; the seed file never overwrites a
 * secret or a tripped circuit breaker
 */
func (l *Loader) Seed(ctx context.Context, repo webhook.Repository) (int, error) {
	seeded := 0
	for _, wh := range l.subscriptions {
		_, err := repo.GetWebhook(ctx, wh.ID)
		if err == nil {
			continue
		}
		if err != webhook.ErrNotFound {
			return seeded, fmt.Errorf("checking webhook %s: %w", wh.ID, err)
		}
		if err := repo.StoreWebhook(ctx, wh); err != nil {
			return seeded, fmt.Errorf("seeding webhook %s: %w", wh.ID, err)
		}
		seeded++
	}
	return seeded, nil
}
