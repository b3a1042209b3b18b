package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// configFilePermissions is owner read/write only: disk sections hold OAuth
// client secrets and refresh tokens.
const configFilePermissions = 0o600

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o700

// sectionHeaderPrefix starts any TOML table header. Used to detect section
// boundaries in line-based edits.
const sectionHeaderPrefix = "["

// integerDiskKeys are written bare; every other disk value is a quoted string.
var integerDiskKeys = map[string]bool{"active_limit": true}

// configTemplate is the default config file content written when the first
// disk is added. All global settings are present as commented-out defaults
// so users can discover every option without reading docs. Later edits are
// line-based so user comments survive.
const configTemplate = `# gdrive-go configuration

# ── Global settings ──
# Uncomment and modify to override defaults.

# OAuth redirect target registered with the Google Cloud client
# redirect_uri = "http://localhost:53682/"

# Log verbosity: debug, info, warn, error
# log_level = "info"

# Log format: auto, text, json
# log_format = "auto"

# How long folder listings stay cached
# list_ttl = "5m"

# Resumable upload chunk size (multiple of 256KiB)
# chunk_size = "8MiB"

# Hold every request to this rate (0 = unlimited)
# requests_per_second = 0

# ── Disks ──
# Added automatically by 'login' and 'disk add'.
`

// diskHeader is the table header of a disk section.
func diskHeader(tag string) string {
	return fmt.Sprintf("[%s.%s]", diskTableKey, tag)
}

// diskSection generates the TOML text for a new, empty disk section. The
// blank line before the header visually separates disk sections.
func diskSection(tag string) string {
	return "\n" + diskHeader(tag) + "\n"
}

// editDiskSection applies values to the [disk.<tag>] section of the file at
// path, creating the file and the section as needed. Keys are written in
// the order given.
func editDiskSection(path, tag string, keys []string, values map[string]string) error {
	data, err := os.ReadFile(path)

	var content string

	switch {
	case errors.Is(err, os.ErrNotExist):
		content = configTemplate
	case err != nil:
		return fmt.Errorf("reading config file: %w", err)
	default:
		content = string(data)
	}

	lines := strings.Split(content, "\n")

	headerLine, sectionStart := findSectionHeader(lines, tag)
	if sectionStart < 0 {
		// Ensure the file ends with a newline before appending, so the new
		// section header starts on its own line.
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}

		content += diskSection(tag)
		lines = strings.Split(content, "\n")
		headerLine, sectionStart = findSectionHeader(lines, tag)
	}

	for _, key := range keys {
		newLine := fmt.Sprintf("%s = %s", key, formatTOMLValue(key, values[key]))
		lines = setKeyInSection(lines, headerLine, sectionStart, key, newLine)
	}

	return atomicWriteFile(path, []byte(strings.Join(lines, "\n")))
}

// deleteDiskSection removes a disk section (header + all keys) from the
// config file, together with blank lines immediately preceding it.
func deleteDiskSection(path, tag string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	lines := strings.Split(string(data), "\n")

	headerLine, sectionStart := findSectionHeader(lines, tag)
	if sectionStart < 0 {
		return fmt.Errorf("disk section %q not found in config: %w", tag, ErrUnknownDisk)
	}

	sectionEnd := findSectionEnd(lines, sectionStart)

	blankStart := headerLine
	for blankStart > 0 && strings.TrimSpace(lines[blankStart-1]) == "" {
		blankStart--
	}

	lines = append(lines[:blankStart], lines[sectionEnd:]...)

	return atomicWriteFile(path, []byte(strings.Join(lines, "\n")))
}

// findSectionHeader locates the line index of a disk section header.
// Returns the header line index and the section content start (header + 1).
// Returns -1 for both if the section is not found.
func findSectionHeader(lines []string, tag string) (int, int) {
	header := diskHeader(tag)

	for i, line := range lines {
		if strings.TrimSpace(line) == header {
			return i, i + 1
		}
	}

	return -1, -1
}

// findSectionEnd returns the index of the first line after the section's
// own content. Blank lines and comments that precede the next section
// header belong to that section's preamble.
func findSectionEnd(lines []string, sectionStart int) int {
	nextHeader := len(lines)

	for i := sectionStart; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), sectionHeaderPrefix) {
			nextHeader = i

			break
		}
	}

	end := nextHeader
	for end > sectionStart {
		trimmed := strings.TrimSpace(lines[end-1])
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			end--

			continue
		}

		break
	}

	return end
}

// setKeyInSection either replaces an existing key line or inserts a new
// one after the section header.
func setKeyInSection(lines []string, headerLine, sectionStart int, key, newLine string) []string {
	sectionEnd := findSectionEnd(lines, sectionStart)
	keyPrefix := key + " "
	keyPrefixEq := key + "="

	for i := headerLine + 1; i < sectionEnd; i++ {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, keyPrefix) || strings.HasPrefix(trimmed, keyPrefixEq) {
			lines[i] = newLine

			return lines
		}
	}

	inserted := make([]string, 0, len(lines)+1)
	inserted = append(inserted, lines[:headerLine+1]...)
	inserted = append(inserted, newLine)
	inserted = append(inserted, lines[headerLine+1:]...)

	return inserted
}

// formatTOMLValue formats a disk value for TOML output.
func formatTOMLValue(key, value string) string {
	if integerDiskKeys[key] {
		return value
	}

	return fmt.Sprintf("%q", value)
}

// atomicWriteFile writes data to a temporary file in the same directory as
// path, fsyncs it, then renames it over the target, so a crash never leaves
// a partially written config. Parent directories are created as needed.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	// Clean up the temp file on any error path.
	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()

		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
