package schema

// Schema names served by the Ensembl registry.
const (
	GeneAnnotation  = "gene_annotation"
	Transcripts     = "transcripts"
	VariantSummary  = "variant_summary"
	VariantMappings = "variant_mappings"
	Orthologs       = "orthologs"
)

// Ensembl builds the registry of table contracts for the Ensembl
// REST endpoints this service fronts. Declared columns must exist;
// extra columns are always tolerated, since Ensembl adds fields
// between releases.
func Ensembl() *Registry {
	return NewRegistry(
		// Single gene record from /lookup/id/{id}.
		&Schema{
			Name: GeneAnnotation,
			Rules: []Rule{
				{Column: "id", Type: TypeString, Required: true},
				{Column: "display_name", Type: TypeString, Nullable: true, Required: true},
				{Column: "biotype", Type: TypeString, Nullable: true, Required: true},
				{Column: "seq_region_name", Type: TypeString, Nullable: true, Required: true},
				{Column: "start", Type: TypeInteger, Nullable: true, Required: true},
				{Column: "end", Type: TypeInteger, Nullable: true, Required: true},
				{Column: "strand", Type: TypeInteger, Nullable: true, Required: true},
			},
			AllowExtraColumns: true,
		},

		// Transcript records from /lookup/id/{id}?expand=1.
		&Schema{
			Name: Transcripts,
			Rules: []Rule{
				{Column: "id", Type: TypeString, Required: true},
				{Column: "biotype", Type: TypeString, Nullable: true, Required: true},
				{Column: "start", Type: TypeInteger, Nullable: true, Required: true},
				{Column: "end", Type: TypeInteger, Nullable: true, Required: true},
				{Column: "strand", Type: TypeInteger, Nullable: true, Required: true},
			},
			AllowExtraColumns: true,
		},

		// Top-level variant fields from /variation/{species}/{id},
		// reduced to a single-row table.
		&Schema{
			Name: VariantSummary,
			Rules: []Rule{
				{Column: "id", Type: TypeString, Nullable: true, Required: true},
				{Column: "most_severe_consequence", Type: TypeString, Nullable: true, Required: true},
				{Column: "minor_allele", Type: TypeString, Nullable: true, Required: true},
				{Column: "minor_allele_freq", Type: TypeFloat, Nullable: true, Required: true},
			},
			AllowExtraColumns: true,
		},

		// Genomic mappings of a variant.
		&Schema{
			Name: VariantMappings,
			Rules: []Rule{
				{Column: "seq_region_name", Type: TypeString, Required: true},
				{Column: "start", Type: TypeInteger, Required: true},
				{Column: "end", Type: TypeInteger, Required: true},
				{Column: "strand", Type: TypeInteger, Required: true},
				{Column: "allele_string", Type: TypeString, Required: true},
			},
			AllowExtraColumns: true,
		},

		// Homology records from /homology/id/{id}?type=orthologues.
		// The target gene stays a structured cell, so only the flat
		// fields carry rules.
		&Schema{
			Name: Orthologs,
			Rules: []Rule{
				{Column: "type", Type: TypeString, Nullable: true},
				{Column: "taxonomy_level", Type: TypeString, Nullable: true},
			},
			AllowExtraColumns: true,
		},
	)
}
