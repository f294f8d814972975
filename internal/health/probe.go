package health

import (
	"fmt"
	"net/http"
	"time"
)

// Probe issues a GET against a running component's /health endpoint
// and returns an error unless it answers 200 OK. Meant for a
// container's HEALTHCHECK or a CLI "healthcheck" subcommand.
func Probe(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health: probing %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health: %s reported status %d", url, resp.StatusCode)
	}
	return nil
}
