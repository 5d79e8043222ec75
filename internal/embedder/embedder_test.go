package embedder

import (
	"testing"
)

func TestComputeHash(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  string
		equal bool
	}{
		{
			name:  "empty string",
			text:  "",
			want:  "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			equal: true,
		},
		{
			name:  "simple text",
			text:  "hello world",
			want:  "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
			equal: true,
		},
		{
			name:  "same text produces same hash",
			text:  "Como usar Python para machine learning?",
			want:  "",
			equal: false, // Will compute and compare
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeHash(tt.text)
			if tt.equal {
				if got != tt.want {
					t.Errorf("ComputeHash() = %v, want %v", got, tt.want)
				}
			} else {
				// Test consistency
				got2 := ComputeHash(tt.text)
				if got != got2 {
					t.Errorf("ComputeHash() not consistent: %v != %v", got, got2)
				}
			}
		})
	}
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     EmbeddingRequest
		wantErr error
	}{
		{
			name: "valid request",
			req: EmbeddingRequest{
				Text: "busca híbrida combina resultados",
			},
			wantErr: nil,
		},
		{
			name: "empty text",
			req: EmbeddingRequest{
				Text: "",
			},
			wantErr: ErrEmptyText,
		},
		{
			name: "with model",
			req: EmbeddingRequest{
				Text:  "test",
				Model: "custom-model",
			},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			if err != tt.wantErr {
				t.Errorf("ValidateRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBatchRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     BatchEmbeddingRequest
		wantErr bool
	}{
		{
			name: "valid batch",
			req: BatchEmbeddingRequest{
				Texts: []string{"text1", "text2", "text3"},
			},
			wantErr: false,
		},
		{
			name: "empty batch",
			req: BatchEmbeddingRequest{
				Texts: []string{},
			},
			wantErr: true,
		},
		{
			name: "contains empty text",
			req: BatchEmbeddingRequest{
				Texts: []string{"text1", "", "text3"},
			},
			wantErr: true,
		},
		{
			name: "all texts valid",
			req: BatchEmbeddingRequest{
				Texts: []string{"a", "b", "c"},
				Model: "test-model",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBatchRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCache(t *testing.T) {
	t.Run("basic operations", func(t *testing.T) {
		cache := NewCache(3)

		// Test empty cache
		if _, ok := cache.Get("nonexistent"); ok {
			t.Error("Expected cache miss on empty cache")
		}

		// Test set and get
		emb := &Embedding{
			Vector:    []float32{1.0, 2.0, 3.0},
			Dimension: 3,
			Provider:  ProviderLocal,
			Model:     "test",
			Hash:      "hash1",
		}
		cache.Set("hash1", emb)

		got, ok := cache.Get("hash1")
		if !ok {
			t.Error("Expected cache hit")
		}
		if got.Hash != "hash1" {
			t.Errorf("Got hash %s, want hash1", got.Hash)
		}

		// Test size
		if cache.Size() != 1 {
			t.Errorf("Cache size = %d, want 1", cache.Size())
		}
	})

	t.Run("LRU eviction on capacity", func(t *testing.T) {
		cache := NewCache(2)

		cache.Set("hash1", &Embedding{Hash: "hash1"})
		cache.Set("hash2", &Embedding{Hash: "hash2"})

		if cache.Size() != 2 {
			t.Errorf("Cache size = %d, want 2", cache.Size())
		}

		// Third entry evicts the least recently used one
		cache.Set("hash3", &Embedding{Hash: "hash3"})

		if _, ok := cache.Get("hash1"); ok {
			t.Error("Expected oldest entry to be evicted")
		}
		if _, ok := cache.Get("hash2"); !ok {
			t.Error("Expected recent entry to survive eviction")
		}
		if _, ok := cache.Get("hash3"); !ok {
			t.Error("Expected new entry to be cached")
		}
	})

	t.Run("get returns a copy", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("hash1", &Embedding{
			Vector: []float32{1.0, 2.0, 3.0},
			Hash:   "hash1",
		})

		got, ok := cache.Get("hash1")
		if !ok {
			t.Fatal("Expected cache hit")
		}

		// Mutating the returned vector must not affect the cached value
		got.Vector[0] = 99.0

		again, _ := cache.Get("hash1")
		if again.Vector[0] != 1.0 {
			t.Errorf("Cache was polluted by caller mutation: got %f, want 1.0", again.Vector[0])
		}
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("hash1", &Embedding{Hash: "hash1"})
		cache.Set("hash2", &Embedding{Hash: "hash2"})

		cache.Clear()

		if cache.Size() != 0 {
			t.Errorf("Cache size after clear = %d, want 0", cache.Size())
		}

		if _, ok := cache.Get("hash1"); ok {
			t.Error("Expected cache miss after clear")
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		cache := NewCache(100)

		done := make(chan bool)
		for i := 0; i < 10; i++ {
			go func(id int) {
				for j := 0; j < 100; j++ {
					hash := ComputeHash("text" + string(rune(id*100+j)))
					emb := &Embedding{
						Vector:    []float32{float32(id), float32(j)},
						Dimension: 2,
						Hash:      hash,
					}
					cache.Set(hash, emb)
					cache.Get(hash)
				}
				done <- true
			}(i)
		}

		for i := 0; i < 10; i++ {
			<-done
		}

		// Should not panic and should have some entries
		if cache.Size() == 0 {
			t.Error("Cache is empty after concurrent operations")
		}
	})
}

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		wantNorm float32
	}{
		{
			name:     "unit vector",
			input:    []float32{1.0, 0.0, 0.0},
			wantNorm: 1.0,
		},
		{
			name:     "needs normalization",
			input:    []float32{3.0, 4.0},
			wantNorm: 1.0,
		},
		{
			name:     "zero vector",
			input:    []float32{0.0, 0.0, 0.0},
			wantNorm: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeVector(tt.input)

			var sum float32
			for _, v := range result {
				sum += v * v
			}

			diff := sum - tt.wantNorm
			if diff < 0 {
				diff = -diff
			}
			if diff > 0.0001 {
				t.Errorf("Normalized vector squared norm = %f, want %f", sum, tt.wantNorm)
			}
		})
	}
}
