package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"
)

const (
	maxEntries = 500
	keysFile   = "keys.txt"
	statsFile  = "stats.txt"
)

// LoadKeys reads FiSH keys from the data directory.
// Each line holds a destination name and its key separated by whitespace.
func LoadKeys(dataDir string) (map[string]string, error) {
	lines, err := readLines(filepath.Join(dataDir, keysFile))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}

	keys := make(map[string]string, len(lines))
	for i, line := range lines {
		if strings.HasPrefix(line, ";") {
			continue
		}
		name, key, ok := strings.Cut(strings.TrimSpace(line), " ")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%s line %d: expected \"<name> <key>\"", keysFile, i+1)
		}
		keys[name] = key
	}
	return keys, nil
}

// SeedKeys returns the keys the store starts with. Once keys.txt exists
// it is authoritative, so keys deleted at runtime stay deleted; the
// configured keys are only used before the first save. The bool reports
// whether keys.txt was used.
func SeedKeys(dataDir string, configured map[string]string) (map[string]string, bool, error) {
	if _, err := os.Stat(filepath.Join(dataDir, keysFile)); err != nil {
		if os.IsNotExist(err) {
			return lo.Assign(configured), false, nil
		}
		return nil, false, err
	}
	keys, err := LoadKeys(dataDir)
	if err != nil {
		return nil, false, err
	}
	return keys, true, nil
}

// SaveKeys writes FiSH keys to the data directory, sorted by name.
// The file is only readable by its owner.
func SaveKeys(dataDir string, keys map[string]string) error {
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, name+" "+keys[name])
	}
	return writeLines(filepath.Join(dataDir, keysFile), lines, 0600)
}

// LoadStats reads the operator command audit trail
func LoadStats(dataDir string) ([]string, error) {
	lines, err := readLines(filepath.Join(dataDir, statsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	return lines, nil
}

// SaveStats writes the audit trail (max 500 entries, newest last)
func SaveStats(dataDir string, stats []string) error {
	if len(stats) > maxEntries {
		stats = stats[len(stats)-maxEntries:]
	}
	return writeLines(filepath.Join(dataDir, statsFile), stats, 0644)
}

// AddStat appends a new stat entry
func AddStat(stats []string, entry string) []string {
	stats = append(stats, entry)
	if len(stats) > maxEntries {
		stats = stats[1:]
	}
	return stats
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// writeLines replaces path atomically
func writeLines(path string, lines []string, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
