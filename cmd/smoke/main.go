package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

var baseURL = "http://localhost:8080"

func main() {
	if u := os.Getenv("SMOKE_BASE_URL"); u != "" {
		baseURL = u
	}
	waitForServer(10 * time.Second)

	fmt.Println("Starting smoke test...")

	run := uuid.New().String()[:8]
	ticket := fmt.Sprintf("SMOKE-%d", time.Now().Unix()%100000)
	persona := "smoke-" + run
	start := time.Now().UTC().Add(-72 * time.Hour)

	// 1. Import activities that share one ticket key.
	fmt.Println("1. Importing activities...")
	activities := []map[string]any{
		{
			"id": "jira-" + run, "tool": "jira", "timestamp": start,
			"title": ticket + ": Checkout times out under load",
			"body":  "Customers see 504s at checkout when traffic spikes.",
			"raw":   map[string]any{"fields": map[string]any{"assignee": map[string]any{"accountId": "acc-" + run}, "status": map[string]any{"name": "Done"}}},
		},
		{
			"id": "pr-" + run, "tool": "github", "timestamp": start.Add(24 * time.Hour),
			"title": "Add connection pooling to checkout (" + ticket + ")",
			"body":  "Implemented pooling and reduced p99 latency by 40%.",
			"raw":   map[string]any{"user": map[string]any{"login": "smoke-dev"}, "merged": true},
		},
		{
			"id": "slack-" + run, "tool": "slack", "timestamp": start.Add(48 * time.Hour),
			"title": "Message in #payments",
			"body":  "Shipped the " + ticket + " fix, checkout is stable now.",
		},
	}
	mustPost("/activities", map[string]any{"activities": activities}, nil)
	fmt.Println("PASSED: Import activities")

	// 2. Register the persona.
	fmt.Println("2. Saving persona...")
	mustPost("/personas", map[string]any{
		"id":           persona,
		"display_name": "Smoke Dev",
		"identities": map[string]any{
			"github": map[string]string{"login": "smoke-dev"},
			"jira":   map[string]string{"account_id": "acc-" + run},
		},
	}, nil)
	fmt.Println("PASSED: Save persona")

	// 3. Rebuild clusters and find ours.
	fmt.Println("3. Building clusters...")
	var built struct {
		Clusters []struct {
			ID               string   `json:"id"`
			SharedReferences []string `json:"shared_references"`
		} `json:"clusters"`
	}
	mustPost("/clusters/build", map[string]any{}, &built)
	clusterID := ""
	for _, c := range built.Clusters {
		for _, r := range c.SharedReferences {
			if r == ticket {
				clusterID = c.ID
			}
		}
	}
	if clusterID == "" {
		fail("no cluster contains %s", ticket)
	}
	fmt.Println("PASSED: Build clusters ->", clusterID)

	// 4. Generate.
	fmt.Println("4. Generating narrative...")
	var gen struct {
		State     string `json:"state"`
		Narrative struct {
			Framework  string  `json:"framework"`
			Confidence float64 `json:"confidence"`
			Components []struct {
				Section string `json:"section"`
				Text    string `json:"text"`
			} `json:"components"`
		} `json:"narrative"`
	}
	mustPost("/narratives/generate", map[string]any{"cluster_id": clusterID, "persona_id": persona}, &gen)
	if gen.State != "DONE" || len(gen.Narrative.Components) == 0 {
		fail("unexpected generation result: state=%s components=%d", gen.State, len(gen.Narrative.Components))
	}
	fmt.Printf("PASSED: Generate (%s, confidence %.2f)\n", gen.Narrative.Framework, gen.Narrative.Confidence)
	for _, c := range gen.Narrative.Components {
		fmt.Printf("   %-10s %s\n", c.Section, c.Text)
	}

	// 5. Lookup errors map to 404.
	fmt.Println("5. Unknown cluster...")
	status, _ := send(http.MethodPost, "/narratives/generate", map[string]any{"cluster_id": "missing-" + run, "persona_id": persona})
	if status != http.StatusNotFound {
		fail("expected 404 for unknown cluster, got %d", status)
	}
	fmt.Println("PASSED: Unknown cluster")
}

func waitForServer(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if status, _ := send(http.MethodGet, "/healthz", nil); status == http.StatusOK {
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	fail("server at %s did not become healthy", baseURL)
}

func mustPost(endpoint string, payload, out any) {
	status, body := send(http.MethodPost, endpoint, payload)
	if status != http.StatusOK {
		fail("%s returned %d: %s", endpoint, status, body)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			fail("failed to decode %s response: %v", endpoint, err)
		}
	}
}

func send(method, endpoint string, payload any) (int, []byte) {
	var body io.Reader
	if payload != nil {
		jsonBytes, err := json.Marshal(payload)
		if err != nil {
			fail("failed to encode payload: %v", err)
		}
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+endpoint, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return 0, nil
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody
}

func fail(format string, args ...any) {
	fmt.Printf("FAILED: "+format+"\n", args...)
	os.Exit(1)
}
