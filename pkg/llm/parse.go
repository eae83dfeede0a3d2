package llm

import (
	"encoding/json"
	"fmt"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// decodeStructured parses an LLM response into the target schema, trying
// strict JSON first, then automated repair, then hjson as the most lenient
// fallback. Models occasionally emit trailing commas or markdown fences even
// in JSON mode; repairing beats retrying a paid call.
func decodeStructured(raw string, out any) error {
	if err := json.Unmarshal([]byte(raw), out); err == nil {
		return nil
	}

	if repaired, err := jsonrepair.RepairJSON(raw); err == nil {
		if err := json.Unmarshal([]byte(repaired), out); err == nil {
			return nil
		}
	}

	var loose any
	if err := hjson.Unmarshal([]byte(raw), &loose); err == nil {
		if normalized, err := json.Marshal(loose); err == nil {
			if err := json.Unmarshal(normalized, out); err == nil {
				return nil
			}
		}
	}

	return fmt.Errorf("llm response is not valid JSON after repair: %.80q", raw)
}
