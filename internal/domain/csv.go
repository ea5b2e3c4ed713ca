package domain

// PIIType classifies the kind of personal data detected in a column.
type PIIType string

const (
	PIITypeEmail   PIIType = "email"
	PIITypePhone   PIIType = "phone"
	PIITypeName    PIIType = "name"
	PIITypeAddress PIIType = "address"
	PIITypeOther   PIIType = "other"
)

// PIIFlag is the per-column PII verdict. It is derived from column names
// and a bounded value sample, recomputed on every upload and never
// persisted on its own.
type PIIFlag struct {
	IsPII      bool    `json:"isPII"`
	Confidence float64 `json:"confidence"`
	Type       PIIType `json:"type"`
}

// CSVProfile is the sniffer's output for one uploaded file: validated
// metadata, a bounded sample and PII flags keyed by column name.
type CSVProfile struct {
	Filename  string             `json:"filename"`
	Encoding  string             `json:"encoding"`
	Delimiter string             `json:"delimiter"`
	RowCount  int                `json:"rowCount"`
	Columns   []string           `json:"columns"`
	Sample    [][]string         `json:"sample"`
	PIIFlags  map[string]PIIFlag `json:"piiFlags"`
}
