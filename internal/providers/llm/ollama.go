package llm

const ollamaBaseURL = "http://localhost:11434"

type Ollama struct {
	*OpenAICompatible
}

// NewOllama talks to Ollama's OpenAI-compatible endpoints. The key is optional.
func NewOllama(baseURL, apiKey, model string) *Ollama {
	if baseURL == "" {
		baseURL = ollamaBaseURL
	}
	return &Ollama{
		OpenAICompatible: NewOpenAICompatible(OpenAICompatibleConfig{
			BaseURL:    baseURL,
			APIKey:     apiKey,
			Model:      model,
			AuthHeader: "Authorization",
			AuthPrefix: "Bearer ",
		}),
	}
}
