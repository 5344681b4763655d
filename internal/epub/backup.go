package epub

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// backupTimestamp is the layout of the timestamp in backup names.
const backupTimestamp = "20060102150405"

// createBackup copies the source archive into the backup directory as
// <stem>_<timestamp>.bak and rotates old backups. Rotation failure is
// swallowed; creation failure is returned and blocks the save.
func (sv *Saver) createBackup(sourcePath string) (string, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return "", err
	}

	dir := sv.backupDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(sourcePath), dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup dir: %w", err)
	}

	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	name := fmt.Sprintf("%s_%s.bak", stem, time.Now().Format(backupTimestamp))
	backupPath := filepath.Join(dir, name)

	if err := copyFile(sourcePath, backupPath); err != nil {
		return "", fmt.Errorf("copying backup: %w", err)
	}

	sv.rotateBackups(dir)
	return backupPath, nil
}

// rotateBackups prunes the oldest .bak files beyond the retention
// count. Errors are ignored; pruning never blocks a save.
func (sv *Saver) rotateBackups(dir string) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.bak"))
	if err != nil {
		return
	}

	type backup struct {
		path string
		mod  time.Time
	}
	var backups []backup
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		backups = append(backups, backup{path: m, mod: info.ModTime()})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].mod.Before(backups[j].mod)
	})

	for len(backups) > sv.maxBackups {
		os.Remove(backups[0].path)
		backups = backups[1:]
	}
}
