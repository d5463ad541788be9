package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/contentsquare/tablecheck/config"
	"github.com/contentsquare/tablecheck/log"
	"github.com/contentsquare/tablecheck/schema"
	"github.com/contentsquare/tablecheck/table"
	"github.com/contentsquare/tablecheck/upstream"
)

// server routes inbound requests through the fetch, normalize and
// validate pipeline. Validation outcomes are data: every request
// that reaches the upstream successfully returns 200, report
// included. Only fetch-layer failures produce error statuses.
type server struct {
	fetcher *upstream.Fetcher
	schemas *schema.Registry

	httpNetworks    config.Networks
	httpsNetworks   config.Networks
	metricsNetworks config.Networks
}

func newServer(f *upstream.Fetcher, r *schema.Registry, cfg config.Server) *server {
	return &server{
		fetcher:         f,
		schemas:         r,
		httpNetworks:    cfg.HTTP.AllowedNetworks,
		httpsNetworks:   cfg.HTTPS.AllowedNetworks,
		metricsNetworks: cfg.Metrics.AllowedNetworks,
	}
}

var promHandler = promhttp.Handler()

func (s *server) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/favicon.ico":
	case "/metrics":
		if !s.metricsNetworks.Contains(r.RemoteAddr) {
			err := fmt.Errorf("connections to /metrics are not allowed from %s", r.RemoteAddr)
			rw.Header().Set("Connection", "close")
			respondWith(rw, err, http.StatusForbidden)
			return
		}
		promHandler.ServeHTTP(rw, r)
	default:
		var err error
		var an config.Networks
		if r.TLS != nil {
			an = s.httpsNetworks
			err = fmt.Errorf("https connections are not allowed from %s", r.RemoteAddr)
		} else {
			an = s.httpNetworks
			err = fmt.Errorf("http connections are not allowed from %s", r.RemoteAddr)
		}
		if !an.Contains(r.RemoteAddr) {
			rw.Header().Set("Connection", "close")
			respondWith(rw, err, http.StatusForbidden)
			return
		}

		s.serveEndpoint(rw, r)
	}
}

func (s *server) serveEndpoint(rw http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/":
		goodRequest.Inc()
		writeJSON(rw, http.StatusOK, map[string]string{
			"message":   "tablecheck: validating gateway for Ensembl REST data",
			"endpoints": "/ensembl/gene-annotation, /ensembl/gene-transcripts, /ensembl/variation, /ensembl/orthologs",
		})
	case "/ensembl/gene-annotation":
		goodRequest.Inc()
		s.handleGeneAnnotation(rw, r)
	case "/ensembl/gene-transcripts":
		goodRequest.Inc()
		s.handleGeneTranscripts(rw, r)
	case "/ensembl/variation":
		goodRequest.Inc()
		s.handleVariation(rw, r)
	case "/ensembl/orthologs":
		goodRequest.Inc()
		s.handleOrthologs(rw, r)
	default:
		badRequest.Inc()
		err := fmt.Sprintf("Unsupported path: %s", r.URL.Path)
		log.Debugf("%s", err)
		rw.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(rw, err)
	}
}

// result pairs the normalized data with its validation report.
type result struct {
	Data       *table.Table   `json:"data"`
	Validation *schema.Report `json:"validation"`
}

func (s *server) handleGeneAnnotation(rw http.ResponseWriter, r *http.Request) {
	geneID, ok := requireArg(rw, r, "gene_id")
	if !ok {
		return
	}

	doc, ok := s.fetchDocument(rw, r, "/lookup/id/"+geneID, nil)
	if !ok {
		return
	}

	s.respondValidated(rw, doc, schema.GeneAnnotation)
}

func (s *server) handleGeneTranscripts(rw http.ResponseWriter, r *http.Request) {
	if _, ok := requireArg(rw, r, "species"); !ok {
		return
	}
	geneID, ok := requireArg(rw, r, "gene_id")
	if !ok {
		return
	}

	doc, ok := s.fetchDocument(rw, r, "/lookup/id/"+geneID, url.Values{"expand": []string{"1"}})
	if !ok {
		return
	}

	transcripts := objectField(doc, "Transcript")
	if transcripts == nil {
		transcripts = []interface{}{}
	}
	s.respondValidated(rw, transcripts, schema.Transcripts)
}

func (s *server) handleVariation(rw http.ResponseWriter, r *http.Request) {
	species, ok := requireArg(rw, r, "species")
	if !ok {
		return
	}
	variantID, ok := requireArg(rw, r, "variant_id")
	if !ok {
		return
	}

	doc, ok := s.fetchDocument(rw, r, "/variation/"+species+"/"+variantID, nil)
	if !ok {
		return
	}

	// Summary is a single-row table built from the top-level fields.
	id := objectField(doc, "name")
	if id == nil {
		id = objectField(doc, "id")
	}
	summaryDoc := map[string]interface{}{
		"id":                      id,
		"most_severe_consequence": objectField(doc, "most_severe_consequence"),
		"minor_allele":            objectField(doc, "minor_allele"),
		"minor_allele_freq":       objectField(doc, "minor_allele_freq"),
	}
	summary, ok := s.validated(rw, summaryDoc, schema.VariantSummary)
	if !ok {
		return
	}

	mappingsDoc := objectField(doc, "mappings")
	if mappingsDoc == nil {
		mappingsDoc = []interface{}{}
	}
	mappings, ok := s.validatedAllowEmpty(rw, mappingsDoc, schema.VariantMappings)
	if !ok {
		return
	}

	writeJSON(rw, http.StatusOK, map[string]*result{
		"summary":  summary,
		"mappings": mappings,
	})
}

func (s *server) handleOrthologs(rw http.ResponseWriter, r *http.Request) {
	geneID, ok := requireArg(rw, r, "gene_id")
	if !ok {
		return
	}
	targetSpecies := r.URL.Query().Get("target_species")

	doc, ok := s.fetchDocument(rw, r, "/homology/id/"+geneID, url.Values{"type": []string{"orthologues"}})
	if !ok {
		return
	}

	homologies := homologiesOf(doc)
	if targetSpecies != "" {
		homologies = filterByTargetSpecies(homologies, targetSpecies)
	}

	s.respondValidated(rw, homologies, schema.Orthologs)
}

// homologiesOf digs data[0].homologies out of a homology response.
func homologiesOf(doc interface{}) []interface{} {
	items, _ := objectField(doc, "data").([]interface{})
	if len(items) == 0 {
		return []interface{}{}
	}
	homologies, _ := objectField(items[0], "homologies").([]interface{})
	if homologies == nil {
		return []interface{}{}
	}
	return homologies
}

// filterByTargetSpecies keeps homologies whose target.species matches.
// The target cell stays structured in the table, so the filter peeks
// into the decoded document instead.
func filterByTargetSpecies(homologies []interface{}, species string) []interface{} {
	filtered := []interface{}{}
	for _, h := range homologies {
		target := objectField(h, "target")
		if sp, _ := objectField(target, "species").(string); sp == species {
			filtered = append(filtered, h)
		}
	}
	return filtered
}

// objectField returns doc[name] when doc is an object, nil otherwise.
func objectField(doc interface{}, name string) interface{} {
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return nil
	}
	return obj[name]
}

// fetchDocument fetches and decodes one upstream payload, writing the
// mapped error response on failure.
func (s *server) fetchDocument(rw http.ResponseWriter, r *http.Request, path string, params url.Values) (interface{}, bool) {
	payload, err := s.fetcher.Fetch(r.Context(), path, params)
	if err != nil {
		respondWithFetchErr(rw, err)
		return nil, false
	}

	doc, err := table.Decode(payload)
	if err != nil {
		// The fetcher only caches valid JSON, so this cannot happen.
		panic(fmt.Sprintf("BUG: invalid JSON slipped through the fetcher: %s", err))
	}
	return doc, true
}

func (s *server) respondValidated(rw http.ResponseWriter, doc interface{}, schemaName string) {
	res, ok := s.validated(rw, doc, schemaName)
	if !ok {
		return
	}
	writeJSON(rw, http.StatusOK, res)
}

// validated normalizes doc and validates it against the named schema.
func (s *server) validated(rw http.ResponseWriter, doc interface{}, schemaName string) (*result, bool) {
	tbl, err := table.Normalize(doc)
	if err != nil {
		// Valid JSON of a shape we cannot tabulate.
		respondWith(rw, fmt.Errorf("unexpected upstream document: %w", err), http.StatusBadGateway)
		return nil, false
	}

	report := schema.Validate(tbl, s.mustSchema(schemaName))
	if !report.Passed {
		validationFailed.With(prometheus.Labels{"schema": schemaName}).Inc()
		log.Debugf("validation of schema %q failed with %d issues", schemaName, len(report.Issues))
	}
	return &result{Data: tbl, Validation: report}, true
}

// validatedAllowEmpty is validated, except that an empty table passes
// even when required columns are missing. Used for variant mappings:
// a variant without genomic mappings is legitimate.
func (s *server) validatedAllowEmpty(rw http.ResponseWriter, doc interface{}, schemaName string) (*result, bool) {
	tbl, err := table.Normalize(doc)
	if err != nil {
		respondWith(rw, fmt.Errorf("unexpected upstream document: %w", err), http.StatusBadGateway)
		return nil, false
	}
	if tbl.NumRows() == 0 {
		return &result{
			Data:       tbl,
			Validation: &schema.Report{Schema: schemaName, Passed: true, Issues: []schema.Issue{}},
		}, true
	}

	report := schema.Validate(tbl, s.mustSchema(schemaName))
	if !report.Passed {
		validationFailed.With(prometheus.Labels{"schema": schemaName}).Inc()
	}
	return &result{Data: tbl, Validation: report}, true
}

func (s *server) mustSchema(name string) *schema.Schema {
	sch, err := s.schemas.Get(name)
	if err != nil {
		panic(fmt.Sprintf("BUG: %s", err))
	}
	return sch
}

func requireArg(rw http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		respondWith(rw, fmt.Errorf("missing mandatory query arg `%s`", name), http.StatusBadRequest)
		return "", false
	}
	return v, true
}

// respondWithFetchErr maps classified fetch failures onto statuses:
// 4xx from the upstream passes through, everything else is a 502.
func respondWithFetchErr(rw http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	var ferr *upstream.Error
	if errors.As(err, &ferr) && ferr.Kind == upstream.ClientError && ferr.StatusCode != 0 {
		status = ferr.StatusCode
	}
	respondWith(rw, err, status)
}

func respondWith(rw http.ResponseWriter, err error, status int) {
	log.Errorf("%s", err)
	rw.WriteHeader(status)
	fmt.Fprintf(rw, "%s", err)
}

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.Errorf("cannot encode response: %s", err)
	}
}
