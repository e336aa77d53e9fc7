package ocigc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/warehouse-labs/registry/cratereg"
)

// CratesReport extends Report with the crate-specific counters
// described in admin/crates/gc.rs's CratesGcReport.
type CratesReport struct {
	Report
	RemovedIndexEntries int `json:"removed_index_entries"`
	DeletedOwnerFiles   int `json:"deleted_owner_files"`
	RemovedEmptyDirs    int `json:"removed_empty_dirs"`
}

// CratesGC sweeps the crate registry rooted at root: deletes .crate
// tarballs that are yanked or have no index entry, repairs index files
// that reference a missing tarball, deletes owners.json files whose
// crate has no index file at all, and removes directories left empty
// by the above.
func CratesGC(root string) (CratesReport, error) {
	var report CratesReport

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return report, nil
		}
		return report, err
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if name == "index" {
			continue
		}
		if !cratereg.ValidateCrateName(name) {
			continue
		}
		crateDir := filepath.Join(root, name)

		indexed, yanked, indexPath, lines := readIndexState(root, name)

		versionEntries, err := os.ReadDir(crateDir)
		if err != nil {
			continue
		}
		for _, v := range versionEntries {
			if !v.IsDir() {
				continue
			}
			version := v.Name()
			if !cratereg.ValidateVersion(version) {
				continue
			}
			versionDir := filepath.Join(crateDir, version)
			tarball := filepath.Join(versionDir, name+"-"+version+".crate")

			if _, err := os.Stat(tarball); err != nil {
				removeIfEmpty(versionDir, &report.RemovedEmptyDirs)
				continue
			}

			shouldDelete := yanked[version] || !indexed[version]
			if shouldDelete {
				if os.Remove(tarball) == nil {
					report.Deleted++
				}
				removeIfEmpty(versionDir, &report.RemovedEmptyDirs)
			} else {
				report.Kept++
			}
		}

		if indexPath != "" {
			report.RemovedIndexEntries += repairIndex(indexPath, lines, root, name)
		} else {
			ownersFile := filepath.Join(crateDir, "owners.json")
			if _, err := os.Stat(ownersFile); err == nil {
				if os.Remove(ownersFile) == nil {
					report.DeletedOwnerFiles++
				}
			}
			removeIfEmpty(crateDir, &report.RemovedEmptyDirs)
		}
	}

	return report, nil
}

// readIndexState reads name's sparse index file (if any) and returns
// the set of indexed versions, the set of yanked versions, the index
// file's path ("" if it doesn't exist), and its non-blank lines.
func readIndexState(root, name string) (indexed, yanked map[string]bool, path string, lines []string) {
	indexed = make(map[string]bool)
	yanked = make(map[string]bool)

	path = filepath.Join(root, "index", cratereg.IndexPrefix(name), name)
	content, err := os.ReadFile(path)
	if err != nil {
		return indexed, yanked, "", nil
	}

	for _, line := range strings.Split(string(content), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lines = append(lines, trimmed)

		var rec struct {
			Vers   string `json:"vers"`
			Yanked bool   `json:"yanked"`
		}
		if err := json.Unmarshal([]byte(trimmed), &rec); err != nil || rec.Vers == "" {
			continue
		}
		indexed[rec.Vers] = true
		if rec.Yanked {
			yanked[rec.Vers] = true
		}
	}
	return indexed, yanked, path, lines
}

// repairIndex rewrites the index file at path, dropping any line
// whose tarball no longer exists on disk. Malformed lines and lines
// with no parseable version are always kept, to be preserved rather
// than risk losing data GC can't interpret.
func repairIndex(path string, lines []string, root, name string) int {
	removed := 0
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		keep := true
		var rec struct {
			Vers string `json:"vers"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err == nil && rec.Vers != "" {
			tarball := filepath.Join(root, name, rec.Vers, name+"-"+rec.Vers+".crate")
			if _, err := os.Stat(tarball); err != nil {
				keep = false
			}
		}
		if keep {
			kept = append(kept, line)
		} else {
			removed++
		}
	}

	if removed > 0 {
		newContent := strings.Join(kept, "\n")
		if len(kept) > 0 {
			newContent += "\n"
		}
		os.WriteFile(path, []byte(newContent), 0o666)
	}
	return removed
}

func removeIfEmpty(dir string, counter *int) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	if os.Remove(dir) == nil {
		*counter++
	}
}
