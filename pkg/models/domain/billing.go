package domain

import "fmt"

// BillingRecord is one line of CloudZero AnyCost CBF data. All values are
// strings on the wire; amounts carry six fractional digits.
type BillingRecord struct {
	UsageStart  string `json:"time/usage_start"`
	ResourceID  string `json:"resource/id"`
	UsageFamily string `json:"resource/usage_family"`
	LineItem    string `json:"lineitem/type"`
	Description string `json:"lineitem/description"`
	Service     string `json:"resource/service"`
	Account     string `json:"resource/account"`
	Region      string `json:"resource/region"`
	UsageUnits  string `json:"usage/units"`
	Operation   string `json:"action/operation"`
	UsageAmount string `json:"usage/amount"`
	Cost        string `json:"cost/cost"`
}

// UploadOperation selects the AnyCost merge semantics for a whole batch.
// Chunking a batch never changes its operation.
type UploadOperation int

const (
	OpReplaceHourly UploadOperation = iota + 1
	OpReplaceDrop
	OpSum
)

// WireString returns the API form of the operation. Unknown values are an
// error rather than a silent fallback.
func (op UploadOperation) WireString() (string, error) {
	switch op {
	case OpReplaceHourly:
		return "replace_hourly", nil
	case OpReplaceDrop:
		return "replace_drop", nil
	case OpSum:
		return "sum", nil
	}
	return "", fmt.Errorf("unknown upload operation %d", int(op))
}

func (op UploadOperation) String() string {
	s, err := op.WireString()
	if err != nil {
		return fmt.Sprintf("UploadOperation(%d)", int(op))
	}
	return s
}
