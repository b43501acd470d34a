package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrMalformedInput indicates the upload is not valid JSON at all.
	ErrMalformedInput = errors.New("malformed JSON input")

	// ErrUnexpectedSchema indicates valid JSON of the wrong shape. The
	// wrapped message names the expected shape so the export can be fixed.
	ErrUnexpectedSchema = errors.New("unexpected export schema")
)

const expectedShape = `{"data": {"result": [ ...patients ]}}`

// DecodeExport parses an uploaded JSON export and returns the raw patient
// records under data.result. Only the top-level structure is validated;
// per-patient validation is deferred to the consumers so that one malformed
// patient never aborts processing of the rest.
func DecodeExport(r io.Reader) ([]Event, error) {
	var raw json.RawMessage
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	// Valid JSON of the wrong kind (an array, a string) is a schema
	// problem, not a parse problem.
	var root map[string]json.RawMessage
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("%w: top level is not an object, expected %s", ErrUnexpectedSchema, expectedShape)
	}

	rawData, ok := root["data"]
	if !ok {
		return nil, fmt.Errorf("%w: missing top-level \"data\" key, expected %s", ErrUnexpectedSchema, expectedShape)
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal(rawData, &data); err != nil {
		return nil, fmt.Errorf("%w: \"data\" is not an object, expected %s", ErrUnexpectedSchema, expectedShape)
	}

	rawResult, ok := data["result"]
	if !ok {
		return nil, fmt.Errorf("%w: missing \"data.result\" key, expected %s", ErrUnexpectedSchema, expectedShape)
	}
	var result []json.RawMessage
	if err := json.Unmarshal(rawResult, &result); err != nil {
		return nil, fmt.Errorf("%w: \"data.result\" is not an array, expected %s", ErrUnexpectedSchema, expectedShape)
	}

	records := make([]Event, 0, len(result))
	for _, raw := range result {
		var e Event
		if err := json.Unmarshal(raw, &e); err != nil {
			// Non-object entries are tolerated and skipped; partial
			// failure must not take down the batch.
			continue
		}
		records = append(records, e)
	}
	return records, nil
}
