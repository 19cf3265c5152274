package report

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteZip собирает архив пакета: ключи карты — имена внутри архива,
// значения — пути исходных файлов. Несуществующие файлы пропускаются.
func WriteZip(path string, entries map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("report: create zip dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create zip: %w", err)
	}
	defer file.Close()

	zw := zip.NewWriter(file)
	for arcName, srcPath := range entries {
		src, err := os.Open(srcPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			_ = zw.Close()
			return fmt.Errorf("report: open %s: %w", srcPath, err)
		}
		entry, err := zw.Create(arcName)
		if err != nil {
			src.Close()
			_ = zw.Close()
			return fmt.Errorf("report: create zip entry %s: %w", arcName, err)
		}
		if _, err := io.Copy(entry, src); err != nil {
			src.Close()
			_ = zw.Close()
			return fmt.Errorf("report: write zip entry %s: %w", arcName, err)
		}
		src.Close()
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("report: finalize zip: %w", err)
	}
	return nil
}
