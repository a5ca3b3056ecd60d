package extractor

import "path/filepath"

// languageByExtension maps a file extension to the language identifier
// used across the store and the extractor registry. Files whose
// extension isn't recognized are skipped per spec 4.2 step 1.
var languageByExtension = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".rs":   "rust",
	".java": "java",
}

// DetectLanguage returns the language identifier for path by
// extension, or "" if the file is not a recognized source file.
func DetectLanguage(path string) string {
	return languageByExtension[filepath.Ext(path)]
}
