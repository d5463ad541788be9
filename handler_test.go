package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentsquare/tablecheck/cache"
	"github.com/contentsquare/tablecheck/config"
	"github.com/contentsquare/tablecheck/log"
	"github.com/contentsquare/tablecheck/schema"
	"github.com/contentsquare/tablecheck/upstream"
)

func TestMain(m *testing.M) {
	log.SuppressOutput(true)
	retCode := m.Run()
	log.SuppressOutput(false)
	os.Exit(retCode)
}

func newTestServer(t *testing.T, upstreamURL string) *server {
	t.Helper()

	c, err := cache.New(config.Cache{
		Mode: "memory",
		TTL:  config.Duration(30 * time.Second),
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	f, err := upstream.New(config.Upstream{
		BaseURL:      upstreamURL,
		Timeout:      config.Duration(5 * time.Second),
		Retries:      3,
		RetryBackoff: config.Duration(time.Millisecond),
	}, c, 30*time.Second)
	require.NoError(t, err)

	return newServer(f, schema.Ensembl(), config.Server{})
}

func doGet(t *testing.T, s *server, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rw := httptest.NewRecorder()
	s.ServeHTTP(rw, req)
	return rw
}

// resultBody is the decoded wire shape of a single pipeline result.
type resultBody struct {
	Data struct {
		Columns []string                 `json:"columns"`
		Rows    []map[string]interface{} `json:"rows"`
	} `json:"data"`
	Validation struct {
		Schema string `json:"schema"`
		Passed bool   `json:"passed"`
		Issues []struct {
			Column  string `json:"column"`
			Rule    string `json:"rule"`
			Row     int    `json:"row"`
			Message string `json:"message"`
		} `json:"issues"`
	} `json:"validation"`
}

func decodeResult(t *testing.T, body string) resultBody {
	t.Helper()

	var res resultBody
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	return res
}

func TestGeneAnnotationPassed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lookup/id/ENSG00000157764", r.URL.Path)
		w.Write([]byte(`{
			"id": "ENSG00000157764",
			"display_name": "BRAF",
			"biotype": "protein_coding",
			"seq_region_name": "7",
			"start": 140719327,
			"end": 140924929,
			"strand": -1,
			"assembly_name": "GRCh38"
		}`))
	}))
	defer srv.Close()

	s := newTestServer(t, srv.URL)
	rw := doGet(t, s, "/ensembl/gene-annotation?gene_id=ENSG00000157764")
	require.Equal(t, http.StatusOK, rw.Code)

	res := decodeResult(t, rw.Body.String())
	assert.True(t, res.Validation.Passed)
	assert.Empty(t, res.Validation.Issues)
	assert.Equal(t, "gene_annotation", res.Validation.Schema)
	require.Len(t, res.Data.Rows, 1)
	assert.Equal(t, "BRAF", res.Data.Rows[0]["display_name"])
	// Undeclared columns survive normalization untouched.
	assert.Contains(t, res.Data.Columns, "assembly_name")
}

func TestGeneAnnotationNullRequiredColumn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id": null,
			"display_name": "BRAF",
			"biotype": "protein_coding",
			"seq_region_name": "7",
			"start": 140719327,
			"end": 140924929,
			"strand": -1
		}`))
	}))
	defer srv.Close()

	s := newTestServer(t, srv.URL)
	rw := doGet(t, s, "/ensembl/gene-annotation?gene_id=ENSG00000157764")
	require.Equal(t, http.StatusOK, rw.Code)

	res := decodeResult(t, rw.Body.String())
	assert.False(t, res.Validation.Passed)
	require.Len(t, res.Validation.Issues, 1)
	assert.Equal(t, "id", res.Validation.Issues[0].Column)
	assert.Equal(t, "not-nullable", res.Validation.Issues[0].Rule)
	assert.Equal(t, 0, res.Validation.Issues[0].Row)
}

func TestGeneAnnotationMissingColumn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "ENSG00000157764"}`))
	}))
	defer srv.Close()

	s := newTestServer(t, srv.URL)
	rw := doGet(t, s, "/ensembl/gene-annotation?gene_id=ENSG00000157764")
	require.Equal(t, http.StatusOK, rw.Code)

	res := decodeResult(t, rw.Body.String())
	assert.False(t, res.Validation.Passed)
	require.NotEmpty(t, res.Validation.Issues)
	for _, issue := range res.Validation.Issues {
		assert.Equal(t, "missing-column", issue.Rule)
		assert.Equal(t, -1, issue.Row)
	}
}

func TestGeneAnnotationMissingArg(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")
	rw := doGet(t, s, "/ensembl/gene-annotation")
	assert.Equal(t, http.StatusBadRequest, rw.Code)
	assert.Contains(t, rw.Body.String(), "gene_id")
}

func TestGeneAnnotationUpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newTestServer(t, srv.URL)
	rw := doGet(t, s, "/ensembl/gene-annotation?gene_id=ENSG00000157764")
	assert.Equal(t, http.StatusBadGateway, rw.Code)
}

func TestGeneAnnotationUpstreamNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := newTestServer(t, srv.URL)
	rw := doGet(t, s, "/ensembl/gene-annotation?gene_id=nope")
	assert.Equal(t, http.StatusNotFound, rw.Code)
}

func TestGeneTranscripts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lookup/id/ENSG00000157764", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("expand"))
		w.Write([]byte(`{
			"id": "ENSG00000157764",
			"Transcript": [
				{"id": "ENST00000646891", "biotype": "protein_coding", "start": 1, "end": 100, "strand": -1},
				{"id": "ENST00000644969", "biotype": "protein_coding", "start": 2, "end": 90, "strand": -1, "is_canonical": 1}
			]
		}`))
	}))
	defer srv.Close()

	s := newTestServer(t, srv.URL)
	rw := doGet(t, s, "/ensembl/gene-transcripts?species=homo_sapiens&gene_id=ENSG00000157764")
	require.Equal(t, http.StatusOK, rw.Code)

	res := decodeResult(t, rw.Body.String())
	assert.True(t, res.Validation.Passed)
	require.Len(t, res.Data.Rows, 2)
	assert.Equal(t, "ENST00000646891", res.Data.Rows[0]["id"])
	assert.Contains(t, res.Data.Columns, "is_canonical")
}

func TestVariationSummaryAndMappings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/variation/homo_sapiens/rs56116432", r.URL.Path)
		w.Write([]byte(`{
			"name": "rs56116432",
			"most_severe_consequence": "missense_variant",
			"minor_allele": "T",
			"minor_allele_freq": 0.002,
			"mappings": [
				{"seq_region_name": "9", "start": 133256042, "end": 133256042, "strand": 1, "allele_string": "C/T"}
			]
		}`))
	}))
	defer srv.Close()

	s := newTestServer(t, srv.URL)
	rw := doGet(t, s, "/ensembl/variation?species=homo_sapiens&variant_id=rs56116432")
	require.Equal(t, http.StatusOK, rw.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &body))
	require.Contains(t, body, "summary")
	require.Contains(t, body, "mappings")

	summary := decodeResult(t, string(body["summary"]))
	assert.True(t, summary.Validation.Passed)
	require.Len(t, summary.Data.Rows, 1)
	assert.Equal(t, "rs56116432", summary.Data.Rows[0]["id"])

	mappings := decodeResult(t, string(body["mappings"]))
	assert.True(t, mappings.Validation.Passed)
	require.Len(t, mappings.Data.Rows, 1)
	assert.Equal(t, "C/T", mappings.Data.Rows[0]["allele_string"])
}

func TestVariationWithoutMappings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"name": "rs0",
			"most_severe_consequence": "intron_variant",
			"minor_allele": null,
			"minor_allele_freq": null,
			"mappings": []
		}`))
	}))
	defer srv.Close()

	s := newTestServer(t, srv.URL)
	rw := doGet(t, s, "/ensembl/variation?species=homo_sapiens&variant_id=rs0")
	require.Equal(t, http.StatusOK, rw.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &body))

	mappings := decodeResult(t, string(body["mappings"]))
	assert.True(t, mappings.Validation.Passed)
	assert.Empty(t, mappings.Data.Rows)
}

func TestOrthologsTargetSpeciesFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/homology/id/ENSG00000157764", r.URL.Path)
		assert.Equal(t, "orthologues", r.URL.Query().Get("type"))
		w.Write([]byte(`{
			"data": [{
				"id": "ENSG00000157764",
				"homologies": [
					{"type": "ortholog_one2one", "taxonomy_level": "Euarchontoglires",
						"target": {"id": "ENSMUSG00000002413", "species": "mus_musculus"}},
					{"type": "ortholog_one2one", "taxonomy_level": "Amniota",
						"target": {"id": "ENSGALG00000012865", "species": "gallus_gallus"}}
				]
			}]
		}`))
	}))
	defer srv.Close()

	s := newTestServer(t, srv.URL)
	rw := doGet(t, s, "/ensembl/orthologs?gene_id=ENSG00000157764&target_species=mus_musculus")
	require.Equal(t, http.StatusOK, rw.Code)

	res := decodeResult(t, rw.Body.String())
	assert.True(t, res.Validation.Passed)
	require.Len(t, res.Data.Rows, 1)
	assert.Equal(t, "Euarchontoglires", res.Data.Rows[0]["taxonomy_level"])
}

func TestOrthologsNoHomologies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	s := newTestServer(t, srv.URL)
	rw := doGet(t, s, "/ensembl/orthologs?gene_id=ENSG00000000000")
	require.Equal(t, http.StatusOK, rw.Code)

	res := decodeResult(t, rw.Body.String())
	assert.Empty(t, res.Data.Rows)
}

func TestUnsupportedPath(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")
	rw := doGet(t, s, "/ensembl/unknown")
	assert.Equal(t, http.StatusBadRequest, rw.Code)
	assert.Contains(t, rw.Body.String(), "Unsupported path")
}

func TestRootBanner(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")
	rw := doGet(t, s, "/")
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Contains(t, rw.Body.String(), "gene-annotation")
}

func TestMetricsDeniedNetwork(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")
	ipnet, err := config.LoadFile("testdata/redis.conf.yml")
	require.NoError(t, err)
	s.metricsNetworks = ipnet.Server.Metrics.AllowedNetworks

	// httptest requests come from 192.0.2.1, outside 127.0.0.0/24.
	rw := doGet(t, s, "/metrics")
	assert.Equal(t, http.StatusForbidden, rw.Code)
}

func TestGzipMiddleware(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "ENSG00000157764", "display_name": "BRAF", "biotype": "x",
			"seq_region_name": "7", "start": 1, "end": 2, "strand": -1}`))
	}))
	defer srv.Close()

	s := newTestServer(t, srv.URL)
	h := timingHandler(gzipHandler(s))

	req := httptest.NewRequest(http.MethodGet, "/ensembl/gene-annotation?gene_id=ENSG00000157764", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "gzip", rw.Header().Get("Content-Encoding"))
	assert.False(t, strings.HasPrefix(rw.Body.String(), "{"))
}
