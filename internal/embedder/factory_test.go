package embedder

import (
	"testing"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "explicit openai provider",
			cfg:  Config{Provider: "openai"},
			want: ProviderOpenAI,
		},
		{
			name: "explicit onnx provider",
			cfg:  Config{Provider: "onnx"},
			want: ProviderONNX,
		},
		{
			name: "explicit local provider",
			cfg:  Config{Provider: "local"},
			want: ProviderLocal,
		},
		{
			name: "explicit provider is case insensitive",
			cfg:  Config{Provider: "OpenAI"},
			want: ProviderOpenAI,
		},
		{
			name: "api key selects openai",
			cfg:  Config{APIKey: "test-key"},
			want: ProviderOpenAI,
		},
		{
			name: "custom endpoint selects openai",
			cfg:  Config{BaseURL: "http://localhost:1234/v1"},
			want: ProviderOpenAI,
		},
		{
			name: "model path selects onnx",
			cfg:  Config{ONNXModelPath: "/models/e5-base"},
			want: ProviderONNX,
		},
		{
			name: "api key wins over model path",
			cfg:  Config{APIKey: "test-key", ONNXModelPath: "/models/e5-base"},
			want: ProviderOpenAI,
		},
		{
			name: "nothing configured falls back to local",
			cfg:  Config{},
			want: ProviderLocal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectProvider(tt.cfg)
			if got != tt.want {
				t.Errorf("DetectProvider() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantErr  bool
		wantProv string
	}{
		{
			name: "openai with key",
			cfg: Config{
				Provider:  ProviderOpenAI,
				APIKey:    "test-key",
				CacheSize: 100,
			},
			wantErr:  false,
			wantProv: ProviderOpenAI,
		},
		{
			name: "openai against local endpoint without key",
			cfg: Config{
				Provider: ProviderOpenAI,
				BaseURL:  "http://localhost:1234/v1",
			},
			wantErr:  false,
			wantProv: ProviderOpenAI,
		},
		{
			name: "local provider",
			cfg: Config{
				Provider:  ProviderLocal,
				CacheSize: 50,
			},
			wantErr:  false,
			wantProv: ProviderLocal,
		},
		{
			name: "openai without key against hosted endpoint",
			cfg: Config{
				Provider: ProviderOpenAI,
			},
			wantErr: true,
		},
		{
			name: "unknown provider",
			cfg: Config{
				Provider: "unknown",
			},
			wantErr: true,
		},
		{
			name: "case insensitive provider",
			cfg: Config{
				Provider: "LOCAL",
			},
			wantErr:  false,
			wantProv: ProviderLocal,
		},
		{
			name: "auto-detect local when nothing set",
			cfg: Config{
				Dimension: 768,
			},
			wantErr:  false,
			wantProv: ProviderLocal,
		},
		{
			name: "auto-detect openai from key",
			cfg: Config{
				APIKey: "test-key",
			},
			wantErr:  false,
			wantProv: ProviderOpenAI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				defer emb.Close()
				if emb.Provider() != tt.wantProv {
					t.Errorf("Provider = %s, want %s", emb.Provider(), tt.wantProv)
				}
			}
		})
	}
}

func TestNewAppliesDimension(t *testing.T) {
	emb, err := New(Config{
		Provider:  ProviderLocal,
		Dimension: 768,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer emb.Close()

	if emb.Dimension() != 768 {
		t.Errorf("Dimension = %d, want 768", emb.Dimension())
	}
}
