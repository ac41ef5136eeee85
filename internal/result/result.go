// Package result implements the single authoritative interpretation of
// whether a containerized operation succeeded.
package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/feedstockops/fsops/internal/model"
)

// Interpret applies the result protocol to a finished run. The checks are
// ordered deliberately: a crashed process is never trusted to have produced
// a valid envelope, so a nonzero exit dominates envelope content.
//
// On success it returns the envelope's data field verbatim.
func Interpret(operation string, exitCode int, envelopePath string) (json.RawMessage, error) {
	if exitCode != 0 {
		return nil, &model.ContainerRuntimeError{
			Operation: operation,
			ExitCode:  exitCode,
			Message:   fmt.Sprintf("nonzero exit: %d", exitCode),
		}
	}

	raw, err := os.ReadFile(envelopePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &model.ContainerRuntimeError{
				Operation: operation,
				Message:   "missing result envelope",
			}
		}
		return nil, fmt.Errorf("could not read result envelope: %w", err)
	}

	// The envelope has exactly two top-level fields; anything else means
	// the in-container counterpart and this code disagree on the contract.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var envelope model.ResultEnvelope
	if err := dec.Decode(&envelope); err != nil {
		return nil, &model.ContainerRuntimeError{
			Operation: operation,
			Message:   fmt.Sprintf("malformed result envelope: %v", err),
		}
	}

	if envelope.Error != "" {
		return nil, &model.ContainerRuntimeError{
			Operation: operation,
			Message:   envelope.Error,
		}
	}

	return envelope.Data, nil
}
