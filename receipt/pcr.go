package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrUnknownMeasurements is returned when an attestation matches no known
// enclave build.
var ErrUnknownMeasurements = errors.New("PCR measurements match no known build")

// PCRSet is a known-good set of enclave measurements.
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	CommitHash string `json:"commit_hash"` // commit the enclave image was built from
}

type pcrConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}

// LoadPCRSets loads known PCR sets from a JSON file.
func LoadPCRSets(path string) ([]PCRSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCR config file: %w", err)
	}
	var config pcrConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse PCR config: %w", err)
	}
	if len(config.PCRSets) == 0 {
		return nil, fmt.Errorf("no PCR sets found in config file")
	}
	return config.PCRSets, nil
}

// MatchPCRs returns the known set the document's image, kernel and
// application measurements match.
func MatchPCRs(doc *AttestationDocument, known []PCRSet) (*PCRSet, error) {
	for i := range known {
		if doc.PCR(0) == known[i].PCR0 && doc.PCR(1) == known[i].PCR1 && doc.PCR(2) == known[i].PCR2 {
			return &known[i], nil
		}
	}
	return nil, fmt.Errorf("%w: PCR0 %s", ErrUnknownMeasurements, doc.PCR(0))
}
