package ai_bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

type clientImpl struct {
	apiHost    string
	httpClient *http.Client
	log        *slog.Logger
}

type Config struct {
	ApiHost    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewClient(cfg *Config) (AIBotAPI, error) {
	if cfg == nil {
		return nil, errors.New("missing parameter: cfg")
	}

	if cfg.ApiHost == "" {
		return nil, errors.New("missing parameter: cfg.ApiHost")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &clientImpl{
		apiHost:    strings.TrimRight(cfg.ApiHost, "/"),
		httpClient: httpClient,
		log:        logger,
	}, nil
}

func (client *clientImpl) Process(ctx context.Context, transcript string, update UIUpdateFunc) error {
	resp, err := client.sendPrompt(ctx, transcript)
	if err != nil {
		return err
	}

	client.log.Info("bot response", "response", resp)

	if update != nil && resp != "" {
		update(resp)
	}

	return nil
}

func (client *clientImpl) sendPrompt(ctx context.Context, prompt string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.apiHost+"/get_prompt_response", nil)
	if err != nil {
		return "", fmt.Errorf("ai_bot: build request: %w", err)
	}

	q := req.URL.Query()
	q.Add("prompt", prompt)
	req.URL.RawQuery = q.Encode()

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai_bot: send prompt: %w", err)
	}

	defer resp.Body.Close()

	// get the response body
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ai_bot: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ai_bot: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return strings.TrimSpace(string(body)), nil
}
