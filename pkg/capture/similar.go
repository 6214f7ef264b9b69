package capture

import (
	"bytes"
	"fmt"

	"github.com/glaslos/ssdeep"
	"github.com/root4loot/goutils/log"
)

// IsSimilarToAny reports whether the screenshot matches any earlier one with a fuzzy hash score
// of at least threshold (1-100). Images too small to hash are compared byte for byte.
func (r Result) IsSimilarToAny(results []Result, threshold int) (bool, error) {
	if threshold < 1 || threshold > 100 {
		return false, fmt.Errorf("invalid similarity threshold %d: must be between 1 and 100", threshold)
	}

	hash1, err := ssdeep.FuzzyBytes(r.Image)
	if err != nil {
		hash1 = ""
	}

	for _, other := range results {
		if hash1 == "" {
			if bytes.Equal(r.Image, other.Image) {
				log.Debugf("%s is identical to %s", r.Base, other.Base)
				return true, nil
			}
			continue
		}

		hash2, err := ssdeep.FuzzyBytes(other.Image)
		if err != nil {
			continue
		}

		score, err := ssdeep.Distance(hash1, hash2)
		if err != nil {
			continue
		}

		if score >= threshold {
			log.Debugf("%s is similar to %s with a score of %d", r.Base, other.Base, score)
			return true, nil
		}
	}

	return false, nil
}
