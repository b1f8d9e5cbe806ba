package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ModelInfo describes one model `aigent doctor --model-catalog` can report
// on, adapted from the teacher's ModelRegistry (trimmed from its six
// providers to the two Aigent actually wires: Claude and Ollama).
type ModelInfo struct {
	ID    string `json:"id"`
	Local bool   `json:"local"`
}

// CloudModels lists the known Claude model identifiers the cloud provider
// accepts (spec §4.13: "model identifiers are kept strictly per-provider").
func CloudModels() []ModelInfo {
	return []ModelInfo{
		{ID: "claude-sonnet-4-20250514"},
		{ID: "claude-opus-4-5-20251101"},
	}
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// LocalModels queries the configured Ollama endpoint for installed models.
func LocalModels(ctx context.Context, baseURL string) ([]ModelInfo, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}

	models := make([]ModelInfo, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		models = append(models, ModelInfo{ID: m.Name, Local: true})
	}
	return models, nil
}
