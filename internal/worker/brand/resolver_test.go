package brand

import (
	"testing"

	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBrands() []Brand {
	account := func(p domain.Platform, id string) domain.Account {
		return domain.Account{Platform: p, AccountID: id, CredentialRef: "REF_" + id, Credential: "secret-" + id}
	}
	return []Brand{
		{Key: "Diamond Dice", Accounts: map[domain.Platform]domain.Account{
			domain.PlatformInstagram: account(domain.PlatformInstagram, "ig-diamond"),
		}},
		{Key: "Pearl Verse", Accounts: map[domain.Platform]domain.Account{
			domain.PlatformYouTube: account(domain.PlatformYouTube, "yt-pearl"),
		}},
		{Key: "Urban Glint", Accounts: map[domain.Platform]domain.Account{
			domain.PlatformInstagram: account(domain.PlatformInstagram, "ig-urban"),
			domain.PlatformPinterest: account(domain.PlatformPinterest, "pin-urban"),
		}},
		{Key: "Opus Elite", Accounts: map[domain.Platform]domain.Account{
			domain.PlatformFacebook: account(domain.PlatformFacebook, "fb-elite"),
		}},
		{Key: "Opus Prime", Accounts: map[domain.Platform]domain.Account{
			domain.PlatformFacebook: account(domain.PlatformFacebook, "fb-prime"),
		}},
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "urbanglint", Normalize("Urban  Glint"))
	assert.Equal(t, "urbanglint", Normalize("URBAN-GLINT!"))
	assert.Equal(t, "brand42", Normalize(" Brand #42 "))
	assert.Equal(t, "", Normalize("✨ — ✨"))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("abc", "abc"), 1e-9)
	assert.InDelta(t, 0.9, Similarity("urbanglynt", "urbanglint"), 1e-9)
	assert.InDelta(t, 8.0/13.0, Similarity("opus", "opuselite"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("abc", "xyz"), 1e-9)
}

func TestResolver_Resolve(t *testing.T) {
	resolver, err := NewResolver(testBrands(), DefaultThreshold)
	require.NoError(t, err)

	tests := []struct {
		name      string
		input     string
		platform  domain.Platform
		wantID    string
		wantExact bool
		wantErr   bool
	}{
		{
			name:      "exact lower case",
			input:     "urban glint",
			platform:  domain.PlatformInstagram,
			wantID:    "ig-urban",
			wantExact: true,
		},
		{
			name:      "exact with double space",
			input:     "Urban  Glint",
			platform:  domain.PlatformInstagram,
			wantID:    "ig-urban",
			wantExact: true,
		},
		{
			name:      "exact upper case without space",
			input:     "URBANGLINT",
			platform:  domain.PlatformInstagram,
			wantID:    "ig-urban",
			wantExact: true,
		},
		{
			name:     "typo above threshold",
			input:    "urban glynt",
			platform: domain.PlatformPinterest,
			wantID:   "pin-urban",
		},
		{
			name:     "abbreviation below threshold",
			input:    "urbn",
			platform: domain.PlatformInstagram,
			wantErr:  true,
		},
		{
			name:     "unrelated name",
			input:    "Zeta Corp",
			platform: domain.PlatformInstagram,
			wantErr:  true,
		},
		{
			name:     "brand without account on platform",
			input:    "Pearl Verse",
			platform: domain.PlatformInstagram,
			wantErr:  true,
		},
		{
			name:     "empty name",
			input:    " -- ",
			platform: domain.PlatformInstagram,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account, match, err := resolver.Resolve(tt.input, tt.platform)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, domain.KindUnresolvedAccount, domain.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, account.AccountID)
			assert.Equal(t, tt.platform, account.Platform)
			assert.Equal(t, tt.wantExact, match.Exact)
			assert.GreaterOrEqual(t, match.Score, resolver.Threshold())
		})
	}
}

func TestResolver_AmbiguousTie(t *testing.T) {
	resolver, err := NewResolver(testBrands(), DefaultThreshold)
	require.NoError(t, err)

	_, match, err := resolver.Resolve("Opus", domain.PlatformFacebook)
	require.Error(t, err)
	assert.Equal(t, domain.KindUnresolvedAccount, domain.KindOf(err))
	assert.Contains(t, err.Error(), "ambiguous")
	assert.Contains(t, err.Error(), "Opus Elite")
	assert.Contains(t, err.Error(), "Opus Prime")
	assert.InDelta(t, 8.0/13.0, match.Score, 1e-9)
}

func TestResolver_ThresholdIsConfigurable(t *testing.T) {
	strict, err := NewResolver(testBrands(), MaxThreshold)
	require.NoError(t, err)
	lenient, err := NewResolver(testBrands(), MinThreshold)
	require.NoError(t, err)

	_, _, err = strict.Resolve("urbn", domain.PlatformInstagram)
	assert.Equal(t, domain.KindUnresolvedAccount, domain.KindOf(err))

	account, _, err := lenient.Resolve("urbn", domain.PlatformInstagram)
	require.NoError(t, err)
	assert.Equal(t, "ig-urban", account.AccountID)
}

func TestNewResolver_ConfigErrors(t *testing.T) {
	tests := []struct {
		name      string
		brands    []Brand
		threshold float64
	}{
		{
			name:      "threshold too low",
			brands:    testBrands(),
			threshold: 0.2,
		},
		{
			name:      "threshold too high",
			brands:    testBrands(),
			threshold: 0.9,
		},
		{
			name:      "keys collide after normalization",
			brands:    []Brand{{Key: "Urban Glint"}, {Key: "urban-glint"}},
			threshold: DefaultThreshold,
		},
		{
			name:      "key without letters",
			brands:    []Brand{{Key: "***"}},
			threshold: DefaultThreshold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(tt.brands, tt.threshold)
			require.Error(t, err)
			assert.True(t, domain.IsConfigError(err))
		})
	}
}

func TestResolver_DefaultThreshold(t *testing.T) {
	resolver, err := NewResolver(testBrands(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, resolver.Threshold())
}
