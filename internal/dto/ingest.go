package dto

// SourceRecord is one scraped document reference handed to the
// ingestion pipeline by the external scraper.
type SourceRecord struct {
	GRNo      string `json:"gr_no"`
	Date      string `json:"date"`
	Branch    string `json:"branch"`
	SubjectEn string `json:"subject_en"`
	SubjectGu string `json:"subject_gu"`
	PDFURL    string `json:"pdf_url"`
}

// IngestRequest carries a batch of source records.
type IngestRequest struct {
	Records []SourceRecord `json:"records"`
}

// IngestFailure describes why one document failed or was only
// partially indexed.
type IngestFailure struct {
	GRNo   string `json:"gr_no"`
	Stage  string `json:"stage"` // download, extract, embed, store
	Reason string `json:"reason"`
}

// IngestSummary reports per-batch outcome counts. Partial documents
// were stored with some chunks missing embeddings.
type IngestSummary struct {
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Partial   int             `json:"partial"`
	Failed    int             `json:"failed"`
	Failures  []IngestFailure `json:"failures,omitempty"`
}
