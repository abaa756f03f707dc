package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SchemaVersionV1 is the only on-disk schema this store understands.
const SchemaVersionV1 uint32 = 1

// Manifest is the crash-safe commit point recording the canonical tip. It
// is the last thing updated after a block is durably applied, so a crash
// between the bbolt commit and the manifest write is recoverable by
// replaying from the last manifest tip.
type Manifest struct {
	SchemaVersion        uint32 `json:"schema_version"`
	Network              string `json:"network"`
	TipHashHex           string `json:"tip_hash"`
	TipHeight            uint64 `json:"tip_height"`
	TipCumulativeWorkDec string `json:"tip_cumulative_work"`
	CheckpointHashHex    string `json:"checkpoint_hash,omitempty"`
	CheckpointHeight     uint64 `json:"checkpoint_height,omitempty"`
	CheckpointProvenance string `json:"checkpoint_provenance,omitempty"`
}

func manifestPath(chainDir string) string {
	return filepath.Join(chainDir, "MANIFEST.json")
}

// readManifest loads chainDir's manifest and enforces the two invariants a
// crash-safe tip pointer must satisfy before the engine trusts it: the
// schema version must be one this binary understands, and the recorded
// network must be the one chainDir was opened for (chainDir is itself
// network-scoped, so a mismatch means the directory was reused across
// networks or the file was copied from elsewhere).
func readManifest(chainDir, network string) (*Manifest, error) {
	b, err := os.ReadFile(manifestPath(chainDir))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("manifest json: %w", err)
	}
	if m.SchemaVersion > SchemaVersionV1 {
		return nil, fmt.Errorf("manifest: schema_version %d > supported %d", m.SchemaVersion, SchemaVersionV1)
	}
	if m.Network != "" && m.Network != network {
		return nil, fmt.Errorf("manifest: network %q does not match chain directory network %q", m.Network, network)
	}
	return &m, nil
}

// writeManifestAtomic writes MANIFEST.json as a crash-safe commit point:
// write temp, fsync temp, rename, fsync directory. network must match the
// manifest's own Network field, guarding against a caller accidentally
// persisting one network's tip pointer into another's chain directory.
func writeManifestAtomic(chainDir, network string, m *Manifest) error {
	if m == nil {
		return fmt.Errorf("manifest: nil")
	}
	if m.Network != network {
		return fmt.Errorf("manifest: refusing to write network %q into chain directory for %q", m.Network, network)
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest json: %w", err)
	}
	b = append(b, '\n')

	final := manifestPath(chainDir)
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("manifest open tmp: %w", err)
	}
	_, werr := f.Write(b)
	serr := f.Sync()
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("manifest write tmp: %w", werr)
	}
	if serr != nil {
		return fmt.Errorf("manifest fsync tmp: %w", serr)
	}
	if cerr != nil {
		return fmt.Errorf("manifest close tmp: %w", cerr)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("manifest rename: %w", err)
	}

	d, err := os.Open(chainDir)
	if err != nil {
		return fmt.Errorf("manifest fsync dir open: %w", err)
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return fmt.Errorf("manifest fsync dir: %w", err)
	}
	if err := d.Close(); err != nil {
		return fmt.Errorf("manifest fsync dir close: %w", err)
	}
	return nil
}
