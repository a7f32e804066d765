package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config controls journal retention.
type Config struct {
	RetentionDays int
}

// DefaultConfig keeps two weeks of sync history.
func DefaultConfig() Config {
	return Config{RetentionDays: 14}
}

// Cleanup removes journal files older than the retention period.
func Cleanup(dir string, config Config) error {
	cutoff := time.Now().AddDate(0, 0, -config.RetentionDays)
	for _, file := range listJournalFiles(dir) {
		if isOlderThan(file, cutoff) {
			if err := os.Remove(file); err != nil {
				return fmt.Errorf("failed to remove %s: %w", file, err)
			}
		}
	}
	return nil
}

func listJournalFiles(dir string) []string {
	files, err := filepath.Glob(filepath.Join(dir, FilePrefix+"-*.journal"))
	if err != nil {
		return nil
	}
	return files
}

func isOlderThan(path string, cutoff time.Time) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.ModTime().Before(cutoff)
}

// Stats summarizes the journal directory.
type Stats struct {
	TotalFiles     int
	TotalSizeBytes int64
	LastSequence   int64
}

// GetStats returns current journal statistics.
func (j *Journal) GetStats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()

	stats := Stats{LastSequence: j.sequence}
	for _, file := range listJournalFiles(j.dir) {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		stats.TotalFiles++
		stats.TotalSizeBytes += info.Size()
	}
	return stats
}
