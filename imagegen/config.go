package imagegen

import (
	"net/http"
	"time"
)

// ProviderConfig 配置单个图像生成供应商.
type ProviderConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Enabled bool          `json:"enabled" yaml:"enabled"`

	// PollInterval 仅用于异步轮询的供应商 (flux).
	PollInterval time.Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper `json:"-" yaml:"-"`
}

// RegistryConfig 配置供应商注册表和健康缓存.
type RegistryConfig struct {
	Providers map[ProviderID]ProviderConfig `json:"providers" yaml:"providers"`
	// Priority orders providers for selection without a preference.
	// Providers missing from the list are appended in AllProviders order.
	Priority []ProviderID `json:"priority,omitempty" yaml:"priority,omitempty"`

	HealthTTL        time.Duration `json:"health_ttl" yaml:"health_ttl"`
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
	ProbeTimeout     time.Duration `json:"probe_timeout" yaml:"probe_timeout"`
}

const (
	defaultTimeout          = 120 * time.Second
	defaultPollInterval     = time.Second
	defaultHealthTTL        = 60 * time.Second
	defaultFailureThreshold = 1
	defaultProbeTimeout     = 10 * time.Second
)

// DefaultRegistryConfig 返回默认注册表配置 (所有供应商均未配置密钥).
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Providers:        map[ProviderID]ProviderConfig{},
		Priority:         append([]ProviderID(nil), AllProviders...),
		HealthTTL:        defaultHealthTTL,
		FailureThreshold: defaultFailureThreshold,
		ProbeTimeout:     defaultProbeTimeout,
	}
}

// defaultProviderConfigs holds base URLs and models per provider.
var defaultProviderConfigs = map[ProviderID]ProviderConfig{
	ProviderOpenAI:    {BaseURL: "https://api.openai.com", Model: "gpt-image-1"},
	ProviderFlux:      {BaseURL: "https://api.bfl.ai", Model: "flux-2-flex"},
	ProviderStability: {BaseURL: "https://api.stability.ai", Model: "sd3.5-large"},
	ProviderIdeogram:  {BaseURL: "https://api.ideogram.ai", Model: "ideogram-v3"},
	ProviderImagen:    {BaseURL: "https://generativelanguage.googleapis.com", Model: "gemini-2.5-flash-image"},
	ProviderRecraft:   {BaseURL: "https://external.api.recraft.ai", Model: "recraftv3"},
	ProviderFal:       {BaseURL: "https://fal.run", Model: "fal-ai/flux/dev"},
}

// withDefaults fills empty fields from the provider defaults.
func (c ProviderConfig) withDefaults(id ProviderID) ProviderConfig {
	d := defaultProviderConfigs[id]
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	return c
}
