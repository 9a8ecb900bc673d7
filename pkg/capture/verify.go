package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"plusload/pkg/api"
)

// VerificationError describes one capture file that failed a check.
type VerificationError struct {
	File   string
	Reason string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("capture %s: %s", e.File, e.Reason)
}

// VerifyResult summarizes one verification pass over a capture directory.
type VerifyResult struct {
	Checked    int
	ByEndpoint map[string]int
	Errors     []*VerificationError
}

// OK reports whether every capture passed.
func (r *VerifyResult) OK() bool {
	return len(r.Errors) == 0
}

// VerifyCaptureSchema re-checks every capture in dir: the metadata sidecar
// must parse, the raw payload must exist with matching size and SHA-256,
// and the payload must still decode under the current schema. Captures
// whose metadata records a parse error are checked for integrity only.
func VerifyCaptureSchema(dir string) (*VerifyResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read capture directory: %w", err)
	}

	var metaNames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), metaSuffix) {
			metaNames = append(metaNames, entry.Name())
		}
	}
	sort.Strings(metaNames)

	result := &VerifyResult{ByEndpoint: make(map[string]int)}
	for _, metaName := range metaNames {
		result.Checked++
		if verr := verifyOne(dir, metaName, result.ByEndpoint); verr != nil {
			result.Errors = append(result.Errors, verr)
		}
	}
	return result, nil
}

func verifyOne(dir, metaName string, byEndpoint map[string]int) *VerificationError {
	serialized, err := os.ReadFile(filepath.Join(dir, metaName))
	if err != nil {
		return &VerificationError{File: metaName, Reason: "unreadable metadata: " + err.Error()}
	}
	var meta metaFile
	if err := json.Unmarshal(serialized, &meta); err != nil {
		return &VerificationError{File: metaName, Reason: "malformed metadata: " + err.Error()}
	}
	if meta.RawPayloadFile == "" {
		return &VerificationError{File: metaName, Reason: "metadata names no raw payload file"}
	}

	payload, err := os.ReadFile(filepath.Join(dir, meta.RawPayloadFile))
	if err != nil {
		return &VerificationError{File: metaName, Reason: "unreadable raw payload: " + err.Error()}
	}
	if len(payload) != meta.PayloadSizeBytes {
		return &VerificationError{
			File:   metaName,
			Reason: fmt.Sprintf("payload size mismatch: metadata says %d bytes, file has %d", meta.PayloadSizeBytes, len(payload)),
		}
	}
	digest := sha256.Sum256(payload)
	if hex.EncodeToString(digest[:]) != meta.PayloadSHA256 {
		return &VerificationError{File: metaName, Reason: "payload sha256 mismatch"}
	}

	byEndpoint[meta.Endpoint]++

	// A capture that never parsed is archived for forensics; only its
	// integrity is checked.
	if meta.ParsedPayloadError != "" {
		return nil
	}

	switch meta.Endpoint {
	case api.EndpointMangaViewer:
		if _, err := api.ParseViewer(payload); err != nil {
			return &VerificationError{File: metaName, Reason: "viewer payload no longer parses: " + err.Error()}
		}
	case api.EndpointTitleDetail:
		if _, err := api.ParseTitleDetail(payload); err != nil {
			return &VerificationError{File: metaName, Reason: "title payload no longer parses: " + err.Error()}
		}
	default:
		return &VerificationError{File: metaName, Reason: fmt.Sprintf("unknown endpoint %q", meta.Endpoint)}
	}
	return nil
}
