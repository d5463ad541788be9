package cache

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyParamOrderIndependence(t *testing.T) {
	a := NewKey("GET", "https://rest.ensembl.org/lookup/id/ENSG1", url.Values{
		"expand":  []string{"1"},
		"species": []string{"human"},
	})
	b := NewKey("GET", "https://rest.ensembl.org/lookup/id/ENSG1", url.Values{
		"species": []string{"human"},
		"expand":  []string{"1"},
	})

	assert.Equal(t, a.String(), b.String())
}

func TestKeyDistinct(t *testing.T) {
	base := NewKey("GET", "https://rest.ensembl.org/lookup/id/ENSG1", url.Values{"expand": []string{"1"}})

	testCases := []struct {
		name string
		key  *Key
	}{
		{
			"different url",
			NewKey("GET", "https://rest.ensembl.org/lookup/id/ENSG2", url.Values{"expand": []string{"1"}}),
		},
		{
			"different param value",
			NewKey("GET", "https://rest.ensembl.org/lookup/id/ENSG1", url.Values{"expand": []string{"0"}}),
		},
		{
			"extra param",
			NewKey("GET", "https://rest.ensembl.org/lookup/id/ENSG1", url.Values{"expand": []string{"1"}, "species": []string{"human"}}),
		},
		{
			"different method",
			NewKey("HEAD", "https://rest.ensembl.org/lookup/id/ENSG1", url.Values{"expand": []string{"1"}}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotEqual(t, base.String(), tc.key.String())
		})
	}
}

func TestKeyVersionChangesKey(t *testing.T) {
	a := NewKey("GET", "https://rest.ensembl.org/lookup/id/ENSG1", nil)
	b := NewKey("GET", "https://rest.ensembl.org/lookup/id/ENSG1", nil)
	b.Version++

	assert.NotEqual(t, a.String(), b.String())
}
