// Package permission implements syntactic validation of "_.syftperm" files.
// The sync engine never evaluates access rules from these files — it only
// needs to know whether a candidate upload is well-formed enough to accept.
package permission

import (
	"fmt"
	"path"

	"github.com/goccy/go-json"
)

// FileName is the reserved file name that marks a permission file.
const FileName = "_.syftperm"

// requiredKeys are the three keys a syntactically valid permission file
// must declare, each as a list of email strings.
var requiredKeys = [...]string{"admin", "read", "write"}

// Spec is the syntactic shape of a permission file: three lists of emails
// under admin/read/write. Unknown keys are ignored.
type Spec struct {
	Admin []string `json:"admin"`
	Read  []string `json:"read"`
	Write []string `json:"write"`
}

// IsPermissionFile reports whether relPath's final segment is the reserved
// permission file name.
func IsPermissionFile(relPath string) bool {
	return path.Base(relPath) == FileName
}

// Validate reports whether data parses as a JSON object carrying admin,
// read, and write keys, each holding a list of strings. This is purely
// syntactic — it never resolves whether the named emails exist or are
// authorized for the path.
func Validate(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("not a json object: %w", err)
	}

	for _, key := range requiredKeys {
		value, ok := raw[key]
		if !ok {
			return fmt.Errorf("missing key %q", key)
		}
		var emails []string
		if err := json.Unmarshal(value, &emails); err != nil {
			return fmt.Errorf("key %q is not a list of strings: %w", key, err)
		}
	}

	return nil
}

// Parse validates data and returns the decoded Spec.
func Parse(data []byte) (*Spec, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}
