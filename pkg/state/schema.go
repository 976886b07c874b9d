// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/agentmux/agentmux/pkg/errors"
)

// snapshotSchema guards boot restore: snapshots that fail it are skipped
// with a warning instead of poisoning the rehydrated session. It pins the
// envelope, not every nested field.
const snapshotSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["schema_version", "id", "state"],
  "properties": {
    "schema_version": {"type": "integer", "minimum": 1, "maximum": 1},
    "id": {"type": "string", "minLength": 1},
    "state": {"type": "object"},
    "message_history": {"type": "array"},
    "pending_messages": {"type": "array"},
    "pending_permissions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["request_id"],
        "properties": {"request_id": {"type": "string", "minLength": 1}}
      }
    },
    "archived": {"type": "boolean"}
  }
}`

var snapshotSchemaLoader = gojsonschema.NewStringLoader(snapshotSchema)

// ValidateSnapshot checks raw snapshot JSON against the envelope schema.
func ValidateSnapshot(raw []byte) error {
	result, err := gojsonschema.Validate(snapshotSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.NewStorageError("snapshot is not valid JSON", err)
	}
	if result.Valid() {
		return nil
	}
	reasons := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		reasons = append(reasons, e.String())
	}
	return errors.NewStorageError(
		fmt.Sprintf("snapshot failed schema validation: %s", strings.Join(reasons, "; ")), nil)
}
