package config

type ServiceConfig struct {
	Name            string         `yaml:"name"`
	Environment     string         `yaml:"environment"`
	Version         string         `yaml:"version"`
	ClientURL       string         `yaml:"client_url"`
	DefaultCurrency string         `yaml:"default_currency"`
	Stripe          StripeConfig   `yaml:"stripe"`
	Supabase        SupabaseConfig `yaml:"supabase"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	// APIURL overrides the Stripe API base URL. Empty means the live API.
	APIURL string `yaml:"api_url"`
}

type SupabaseConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	ProjectURL string `yaml:"project_url"`
	APIKey     string `yaml:"api_key"`
}
