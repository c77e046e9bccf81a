package labels

import (
    "encoding/base64"
    "fmt"
    "os"
    "path/filepath"

    "shipbatch/internal/errcode"
)

// Label storage. Labels are written to a staging area first and promoted
// once the shipment is confirmed, so the final directory only ever holds
// labels for real shipments.

// Storage persists label PDFs keyed by job and row.
type Storage interface {
    SaveStaged(jobID string, ordinal int, tracking string, pdf []byte) (string, error)
    Promote(stagedRef string) (string, error)
    Exists(ref string) bool
}

// Filename builds the deterministic label filename for a row.
func Filename(jobID string, ordinal int, tracking string) string {
    prefix := "unknown"
    if len(jobID) >= 8 {
        prefix = jobID[:8]
    } else if jobID != "" {
        prefix = jobID
    }
    return fmt.Sprintf("%s_row%03d_%s.pdf", prefix, ordinal, tracking)
}

// Decode converts the carrier's base64 label body to PDF bytes.
func Decode(b64 string) ([]byte, error) {
    pdf, err := base64.StdEncoding.DecodeString(b64)
    if err != nil {
        return nil, errcode.Newf(errcode.CodeCarrierUnknown, "label body is not valid base64: %v", err)
    }
    return pdf, nil
}

// Local is filesystem-backed storage rooted at a base directory.
type Local struct {
    BaseDir string
}

func NewLocal(baseDir string) *Local { return &Local{BaseDir: baseDir} }

func (l *Local) SaveStaged(jobID string, ordinal int, tracking string, pdf []byte) (string, error) {
    dir := filepath.Join(l.BaseDir, "staging", jobID)
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return "", errcode.Newf(errcode.CodeFilesystem, "create staging dir: %v", err)
    }
    path := filepath.Join(dir, Filename(jobID, ordinal, tracking))
    if err := os.WriteFile(path, pdf, 0o644); err != nil {
        return "", errcode.Newf(errcode.CodeFilesystem, "write staged label: %v", err)
    }
    return path, nil
}

func (l *Local) Promote(stagedRef string) (string, error) {
    if err := os.MkdirAll(l.BaseDir, 0o755); err != nil {
        return "", errcode.Newf(errcode.CodeFilesystem, "create label dir: %v", err)
    }
    final := filepath.Join(l.BaseDir, filepath.Base(stagedRef))
    if err := os.Rename(stagedRef, final); err != nil {
        return "", errcode.Newf(errcode.CodeFilesystem, "promote label: %v", err)
    }
    return final, nil
}

func (l *Local) Exists(ref string) bool {
    info, err := os.Stat(ref)
    return err == nil && !info.IsDir()
}
