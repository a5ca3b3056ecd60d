package jobs

import (
	"os"
	"path/filepath"

	"github.com/jayminwest/kotadb-sub013/internal/extractor"
)

func testPipeline() *extractor.Pipeline {
	return extractor.NewPipeline()
}

func writeTestFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(content), 0o600)
}
