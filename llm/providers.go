// llm/providers.go
package llm

import "fmt"

// Provider is a known OpenAI-compatible endpoint.
type Provider struct {
	Name    string
	BaseURL string
	KeyEnv  string
}

var providers = map[string]Provider{
	"deepseek": {Name: "deepseek", BaseURL: "https://api.deepseek.com", KeyEnv: "DEEPSEEK_API_KEY"},
	"openai":   {Name: "openai", BaseURL: "https://api.openai.com", KeyEnv: "OPENAI_API_KEY"},
	"grok":     {Name: "grok", BaseURL: "https://api.x.ai/v1", KeyEnv: "XAI_API_KEY"},
	"groq":     {Name: "groq", BaseURL: "https://api.groq.com/openai", KeyEnv: "GROQ_API_KEY"},
}

// LookupProvider resolves a provider preset by name.
func LookupProvider(name string) (Provider, error) {
	p, ok := providers[name]
	if !ok {
		return Provider{}, fmt.Errorf("unknown provider %q (known: deepseek, openai, grok, groq)", name)
	}
	return p, nil
}
