package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// Webhook implements ports.Alerter against a Discord-compatible webhook.
// An empty URL disables it silently so the composition root can wire it
// unconditionally.
type Webhook struct {
	url     string
	client  *http.Client
	enabled bool
}

// NewWebhook builds the alerter. A zero timeout defaults to 10s.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		enabled: url != "",
	}
}

// embedColors follows the usual Discord palette per severity.
var embedColors = map[domain.AlertLevel]int{
	domain.AlertCritical: 0xe74c3c,
	domain.AlertWarning:  0xf39c12,
	domain.AlertInfo:     0x3498db,
	domain.AlertSuccess:  0x2ecc71,
}

// Alert posts one embed per alert. Delivery failures bubble up; the caller
// decides whether to log or retry.
func (w *Webhook) Alert(ctx context.Context, level domain.AlertLevel, title, message string, metadata map[string]string) error {
	if !w.enabled {
		return nil
	}

	fields := make([]map[string]any, 0, len(metadata))
	for _, k := range sortedMetaKeys(metadata) {
		fields = append(fields, map[string]any{
			"name":   k,
			"value":  metadata[k],
			"inline": true,
		})
	}

	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       title,
				"description": message,
				"color":       embedColors[level],
				"fields":      fields,
				"timestamp":   time.Now().UTC().Format(time.RFC3339),
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify.Alert: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("notify.Alert: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify.Alert: post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify.Alert: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func sortedMetaKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
