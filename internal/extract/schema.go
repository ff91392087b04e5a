package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseAgainstSchema parses a model response as a JSON object and
// checks the configured required top-level keys.
func parseAgainstSchema(blob string, required []string) (map[string]interface{}, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(blob), &fields); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}

	var missing []string
	for _, key := range required {
		if _, ok := fields[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("response omits required fields: %s", strings.Join(missing, ", "))
	}
	return fields, nil
}

// combineRecords merges per-page record lists, keyed by claim number.
// A claim seen on a later page contributes its procedure rows to the
// record that introduced it. Records without a claim number are
// dropped.
func combineRecords(pages []map[string]interface{}) []map[string]interface{} {
	combined := []map[string]interface{}{}
	index := map[string]int{}

	for _, fields := range pages {
		records, ok := fields["Records"].([]interface{})
		if !ok {
			continue
		}
		for _, raw := range records {
			record, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			claimID := claimNumber(record)
			if claimID == "" {
				continue
			}

			pos, seen := index[claimID]
			if !seen {
				index[claimID] = len(combined)
				combined = append(combined, record)
				continue
			}

			existing := combined[pos]
			existing["Procs"] = append(procs(existing), procs(record)...)
		}
	}

	return combined
}

func claimNumber(record map[string]interface{}) string {
	claim, ok := record["Claim"].(map[string]interface{})
	if !ok {
		return ""
	}
	meta, ok := claim["ClaimNum"].(map[string]interface{})
	if !ok {
		return ""
	}
	value, _ := meta["value"].(string)
	return strings.TrimSpace(value)
}

func procs(record map[string]interface{}) []interface{} {
	list, _ := record["Procs"].([]interface{})
	return list
}
