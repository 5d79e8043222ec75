package textproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "lowercases", input: "Python Para Iniciantes", want: "python para iniciantes"},
		{name: "folds accents", input: "certidão negativa côngrua", want: "certidao negativa congrua"},
		{name: "collapses whitespace", input: "  como   usar\tPython \n", want: "como usar python"},
		{name: "cedilla", input: "ação coração", want: "acao coracao"},
		{name: "drops invalid utf8", input: "ol\xffá", want: "ola"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestTokenize(t *testing.T) {
	t.Run("removes stopwords and short tokens", func(t *testing.T) {
		got := Tokenize("Como usar o Python para machine learning?")
		assert.Equal(t, []string{"usar", "python", "machine", "learning"}, got)
	})

	t.Run("keeps formatted identifiers whole", func(t *testing.T) {
		got := Tokenize("processo 123-456 versão 3.14")
		assert.Contains(t, got, "123-456")
		assert.Contains(t, got, "3.14")
	})

	t.Run("keep-all variant retains stopwords", func(t *testing.T) {
		got := TokenizeAll("como usar isso")
		assert.Equal(t, []string{"como", "usar", "isso"}, got)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Tokenize(""))
	})
}

func TestExtractAcronyms(t *testing.T) {
	got := ExtractAcronyms("Consulta ao INSS e CPF pelo portal GOV")
	assert.Equal(t, []string{"INSS", "CPF", "GOV"}, got)

	assert.Empty(t, ExtractAcronyms("nenhuma sigla aqui"))
}

func TestExtractNumbers(t *testing.T) {
	t.Run("cpf", func(t *testing.T) {
		got := ExtractNumbers("CPF 123.456.789-00 do requerente")
		assert.Contains(t, got, "123.456.789-00")
	})

	t.Run("cnpj", func(t *testing.T) {
		got := ExtractNumbers("empresa 12.345.678/0001-95")
		assert.Contains(t, got, "12.345.678/0001-95")
	})

	t.Run("codes", func(t *testing.T) {
		got := ExtractNumbers("chamado ABC-1234 aberto")
		assert.Contains(t, got, "ABC-1234")
	})

	t.Run("deduplicates", func(t *testing.T) {
		got := ExtractNumbers("lei 8112 e lei 8112")
		count := 0
		for _, n := range got {
			if n == "8112" {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})
}

func TestExtractProperNouns(t *testing.T) {
	got := ExtractProperNouns("O advogado Carlos protocolou em Brasília. Depois viajou.")
	assert.Contains(t, got, "carlos")
	assert.Contains(t, got, "brasília")

	t.Run("skips sentence-initial capitals", func(t *testing.T) {
		got := ExtractProperNouns("Python é ótimo")
		assert.NotContains(t, got, "python")
	})
}

func TestSparseQuery(t *testing.T) {
	q := SparseQuery("Como consultar o CPF 123.456.789-00 no INSS?")

	// Acronyms and identifiers lead, all lowercased, no stopwords.
	assert.True(t, strings.HasPrefix(q, "cpf"), "acronyms come first: %q", q)
	assert.Contains(t, q, "123.456.789-00")
	assert.Contains(t, q, "inss")
	assert.Contains(t, q, "consultar")
	assert.NotContains(t, strings.Fields(q), "como")

	t.Run("deduplicates case-insensitively", func(t *testing.T) {
		q := SparseQuery("INSS inss")
		assert.Equal(t, 1, strings.Count(q, "inss"))
	})
}

func TestDenseQueryPreservesPhrasing(t *testing.T) {
	got := DenseQuery("  Como usar   Python para machine learning?  ")
	assert.Equal(t, "Como usar Python para machine learning?", got)
}

func TestMustHaveTerms(t *testing.T) {
	t.Run("acronyms and numbers", func(t *testing.T) {
		got := MustHaveTerms("Valor do IPTU 2024 em atraso")
		assert.Contains(t, got, "iptu")
		assert.Contains(t, got, "2024")
	})

	t.Run("quoted phrases keep stopwords", func(t *testing.T) {
		got := MustHaveTerms(`Busca por "termo de rescisão"`)
		assert.Contains(t, got, "termo")
		assert.Contains(t, got, "de")
		assert.Contains(t, got, "rescisao")
	})

	t.Run("plain query has none", func(t *testing.T) {
		assert.Empty(t, MustHaveTerms("como usar python"))
	})
}

func TestAnalyze(t *testing.T) {
	a := Analyze("Como usar Python para machine learning?")

	assert.Equal(t, "Como usar Python para machine learning?", a.DenseQuery)
	assert.Contains(t, a.SparseQuery, "python")
	assert.Contains(t, a.Terms, "machine")
	assert.Empty(t, a.MustHave)
}

func TestTermCoverage(t *testing.T) {
	text := "O contribuinte deve apresentar o CPF 123.456.789-00 na agência do INSS."

	found, total := TermCoverage(text, []string{"cpf", "inss", "inexistente"})
	assert.Equal(t, 2, found)
	assert.Equal(t, 3, total)

	t.Run("accent-folded match", func(t *testing.T) {
		found, _ := TermCoverage("agência próxima", []string{"agencia"})
		assert.Equal(t, 1, found)
	})

	t.Run("no terms", func(t *testing.T) {
		found, total := TermCoverage(text, nil)
		assert.Zero(t, found)
		assert.Zero(t, total)
	})
}

func TestTruncate(t *testing.T) {
	t.Run("short text untouched", func(t *testing.T) {
		assert.Equal(t, "curto", Truncate("curto", 100))
	})

	t.Run("cuts at word boundary", func(t *testing.T) {
		text := strings.Repeat("palavra ", 40) // 320 chars
		got := Truncate(text, 100)
		require.True(t, strings.HasSuffix(got, "..."))
		assert.LessOrEqual(t, len([]rune(got)), 103)
		assert.NotContains(t, strings.TrimSuffix(got, "..."), "palavr ")
		assert.True(t, strings.HasSuffix(strings.TrimSuffix(got, "..."), "palavra"),
			"must end on a whole word: %q", got)
	})

	t.Run("hard cut when no close space", func(t *testing.T) {
		text := strings.Repeat("x", 200)
		got := Truncate(text, 100)
		assert.Equal(t, strings.Repeat("x", 100)+"...", got)
	})

	t.Run("rune safe", func(t *testing.T) {
		text := strings.Repeat("ç", 50)
		got := Truncate(text, 10)
		assert.Equal(t, strings.Repeat("ç", 10)+"...", got)
	})
}
