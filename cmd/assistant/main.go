package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ontime-erp/assistant/common/environment"
	"github.com/ontime-erp/assistant/common/version"
	"github.com/ontime-erp/assistant/internal/assistant/app"
	"github.com/ontime-erp/assistant/internal/assistant/audit"
	"github.com/ontime-erp/assistant/internal/assistant/jobs"
	"github.com/ontime-erp/assistant/internal/assistant/llm"
)

func main() {
	fmt.Printf("OnTime Assistant\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	assistant, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize assistant: %v\n", err)
		os.Exit(1)
	}
	defer assistant.Stop()

	if err := assistant.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running assistant: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from environment variables.
func loadConfig() (app.Config, error) {
	tokensRaw, err := environment.RequiredString("ASSISTANT_API_TOKENS")
	if err != nil {
		return app.Config{}, err
	}
	tokens, err := parseTokens(tokensRaw)
	if err != nil {
		return app.Config{}, err
	}

	cfg := app.Config{
		DatabasePath: environment.StringOr("ASSISTANT_DB_PATH", "./assistant.db"),
		ListenAddr:   environment.StringOr("ASSISTANT_LISTEN_ADDR", ":8080"),
		Tokens:       tokens,
		Roles:        parseRoles(os.Getenv("ASSISTANT_USER_ROLES")),
		AdminUsers:   splitList(os.Getenv("ASSISTANT_ADMIN_USERS")),

		DefaultProvider: os.Getenv("ASSISTANT_DEFAULT_PROVIDER"),
		RateLimit:       environment.IntOr("ASSISTANT_RATE_LIMIT", llm.DefaultRateLimit),
		JobRetention:    environment.DurationOr("ASSISTANT_JOB_RETENTION", jobs.DefaultRetention),
		JobStaleAfter:   environment.DurationOr("ASSISTANT_JOB_STALE_AFTER", jobs.DefaultStaleAfter),
		WorkerPoll:      environment.DurationOr("ASSISTANT_WORKER_POLL", jobs.DefaultPollInterval),

		Matrix: audit.MatrixConfig{
			Homeserver:  os.Getenv("MATRIX_HOMESERVER"),
			UserID:      os.Getenv("MATRIX_USER_ID"),
			AccessToken: os.Getenv("MATRIX_ACCESS_TOKEN"),
		},
		OpsRoom: os.Getenv("MATRIX_OPS_ROOM"),
	}

	for _, p := range []struct{ name, keyVar string }{
		{"openai", "OPENAI_API_KEY"},
		{"deepseek", "DEEPSEEK_API_KEY"},
		{"mistral", "MISTRAL_API_KEY"},
		{"gemini", "GEMINI_API_KEY"},
	} {
		key := os.Getenv(p.keyVar)
		if key == "" {
			continue
		}
		cfg.Providers = append(cfg.Providers, app.ProviderConfig{
			Name:    p.name,
			APIKey:  key,
			BaseURL: os.Getenv(strings.ToUpper(p.name) + "_BASE_URL"),
			Model:   os.Getenv(strings.ToUpper(p.name) + "_MODEL"),
		})
	}
	if len(cfg.Providers) == 0 {
		return app.Config{}, fmt.Errorf("at least one model provider API key is required (OPENAI_API_KEY, DEEPSEEK_API_KEY, MISTRAL_API_KEY, or GEMINI_API_KEY)")
	}

	return cfg, nil
}

// parseTokens parses "token:user,token2:user2".
func parseTokens(raw string) (map[string]string, error) {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, user, ok := strings.Cut(pair, ":")
		if !ok || token == "" || user == "" {
			return nil, fmt.Errorf("ASSISTANT_API_TOKENS entry %q must be token:user", pair)
		}
		tokens[token] = user
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("ASSISTANT_API_TOKENS is empty")
	}
	return tokens, nil
}

// parseRoles parses "alice:Sales User|Accounts User;bob:Accounts User".
func parseRoles(raw string) map[string][]string {
	roles := make(map[string][]string)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		user, list, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		var parsed []string
		for _, role := range strings.Split(list, "|") {
			if role = strings.TrimSpace(role); role != "" {
				parsed = append(parsed, role)
			}
		}
		if len(parsed) > 0 {
			roles[strings.TrimSpace(user)] = parsed
		}
	}
	return roles
}

func splitList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
