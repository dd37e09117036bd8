package boxconv

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// filesByExtInDir returns the regular files found directly in directory dirPath, split into those
// with file extension ext and all others. Both lists are in lexical order. All files match if ext
// is empty.
func filesByExtInDir(dirPath, ext string) (files, others []string, err error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read directory %q: %w", dirPath, err)
	}

	files = make([]string, 0, len(entries))
	for _, e := range entries {
		// Must be a regular file or a symlink.
		if !e.Type().IsRegular() && e.Type()&os.ModeSymlink == 0 {
			continue
		}
		path := filepath.Join(dirPath, e.Name())
		if strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			files = append(files, path)
		} else {
			others = append(others, path)
		}
	}

	return files, others, nil
}

// splitPath splits the given file path into the dir name, the base name without extension and the
// extension (without the dot).
func splitPath(path string) (dir, baseNoExt, ext string, err error) {
	dir, file := filepath.Split(path)
	ext = filepath.Ext(file)
	if ext == "" {
		return "", "", "", fmt.Errorf("missing file extension in %q", path)
	}

	dir = strings.TrimSuffix(dir, string(os.PathSeparator))
	baseNoExt = file[0 : len(file)-len(ext)]
	ext = ext[1:]

	return dir, baseNoExt, ext, nil
}

// FilePair is an image and the annotation file that shares its base name.
type FilePair struct {
	Image      string
	Annotation string
}

// Pairs maps base file names, without extension, to the matching image and annotation paths.
type Pairs map[string]FilePair

// imageExts are the file extensions that are considered images.
var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".tif": true,
	".tiff": true, ".webp": true,
}

// isImageFile reports whether path has an image file extension.
func isImageFile(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// PairFiles builds the lookup for the given annotation and image paths. Names without a partner
// are kept with an empty path on the other side. Image paths without an image file extension are
// ignored, so both lists may come from the same directory.
func PairFiles(annotations, images []string) Pairs {
	pairs := make(Pairs, len(annotations))
	for _, path := range images {
		if !isImageFile(path) {
			continue
		}
		_, baseNoExt, _, err := splitPath(path)
		if err != nil {
			log.Print(err)
			continue
		}
		p := pairs[baseNoExt]
		p.Image = path
		pairs[baseNoExt] = p
	}
	for _, path := range annotations {
		_, baseNoExt, _, err := splitPath(path)
		if err != nil {
			log.Print(err)
			continue
		}
		p := pairs[baseNoExt]
		p.Annotation = path
		pairs[baseNoExt] = p
	}

	return pairs
}

// Image returns the image that matches the annotation file at path.
func (p Pairs) Image(annotationPath string) (string, bool) {
	_, baseNoExt, _, err := splitPath(annotationPath)
	if err != nil {
		return "", false
	}
	pair, ok := p[baseNoExt]
	return pair.Image, ok && pair.Image != ""
}

// ImageFiles returns the image files found directly in directory dir, in lexical order.
func ImageFiles(dir string) ([]string, error) {
	files, _, err := filesByExtInDir(dir, "")
	if err != nil {
		return nil, err
	}
	images := files[:0]
	for _, path := range files {
		if isImageFile(path) {
			images = append(images, path)
		}
	}
	return images, nil
}

// readLines returns a slice of lines read from the file at path.
func readLines(path string) (lines []string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &Error{Kind: IOError, Path: path, Err: err}
	}
	defer closeWithErrCheck(file, &err)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, newError(IOError, path, "failed to read lines: %w", err)
	}

	return lines, nil
}

// readFile reads the whole file at path and wraps failures as IOError.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Kind: IOError, Path: path, Err: err}
	}
	return data, nil
}

// writeFile atomically replaces the file at path with data. Readers never see a partially
// written file.
func writeFile(path string, data []byte) error {
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return newError(IOError, path, "cannot write file: %w", err)
	}
	return nil
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
