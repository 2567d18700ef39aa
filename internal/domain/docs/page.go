package docs

// Page is one page of extracted document text, as handed from the PDF
// extractor to the chunker. Number is 1-based.
type Page struct {
	Number int    `json:"page_number"`
	Text   string `json:"text"`
}
