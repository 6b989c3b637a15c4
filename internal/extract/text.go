package extract

// extractText handles markdown and plain text: a UTF-8 decode with invalid
// bytes replaced. Binary masquerading as text is rejected.
func (e *Extractor) extractText(data []byte) (*Result, error) {
	text, err := decodeUTF8(data)
	if err != nil {
		return nil, err
	}
	return &Result{Text: text, Method: "utf-8"}, nil
}
