package provider

import "testing"

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "ollama needs nothing",
			cfg:  Config{Backend: BackendOllama},
		},
		{
			name:    "openai requires api key",
			cfg:     Config{Backend: BackendOpenAI},
			wantErr: true,
		},
		{
			name: "openai with api key",
			cfg:  Config{Backend: BackendOpenAI, APIKey: "sk-test", Model: "gpt-4o"},
		},
		{
			name:    "azure requires endpoint",
			cfg:     Config{Backend: BackendAzure, APIKey: "k", AzureDeployment: "d"},
			wantErr: true,
		},
		{
			name:    "azure requires deployment",
			cfg:     Config{Backend: BackendAzure, APIKey: "k", BaseURL: "https://x.openai.azure.com"},
			wantErr: true,
		},
		{
			name: "azure fully specified",
			cfg: Config{
				Backend: BackendAzure, APIKey: "k",
				BaseURL: "https://x.openai.azure.com", AzureDeployment: "gpt-4.1",
			},
		},
		{
			name:    "bedrock requires model id",
			cfg:     Config{Backend: BackendBedrock},
			wantErr: true,
		},
		{
			name:    "gemini requires api key",
			cfg:     Config{Backend: BackendGemini, Model: "gemini-1.5-pro"},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			cfg:     Config{Backend: "mystery"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
