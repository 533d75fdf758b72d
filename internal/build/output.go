package build

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/vei/internal/errors"
)

// writeConcurrency bounds parallel file writes and copies.
const writeConcurrency = 8

// WriteOutputs writes files into outDir. With clean set the directory is
// emptied first. Files outside outDir are rejected.
func WriteOutputs(ctx context.Context, outDir string, files []api.OutputFile, clean bool) error {
	if clean {
		if err := os.RemoveAll(outDir); err != nil {
			return errors.WrapIO(err, errors.ErrCodeWriteFailed, "failed to clear output directory").WithFile(outDir)
		}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, "failed to create output directory").WithFile(outDir)
	}

	for _, f := range files {
		if !isWithin(outDir, f.Path) {
			return errors.NewInternalError(errors.ErrCodeWriteFailed, "output file outside the output directory", nil).
				WithFile(f.Path)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(writeConcurrency)

	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
				return errors.WrapIO(err, errors.ErrCodeWriteFailed, "failed to create directory").WithFile(f.Path)
			}
			if err := os.WriteFile(f.Path, f.Contents, 0o644); err != nil {
				return errors.WrapIO(err, errors.ErrCodeWriteFailed, "failed to write output").WithFile(f.Path)
			}
			return nil
		})
	}

	return g.Wait()
}

// CopyPublic copies the public directory over outDir, replacing files of
// the same name. A missing public directory is not an error.
func CopyPublic(ctx context.Context, publicDir, outDir string) error {
	info, err := os.Stat(publicDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeFileNotFound, "failed to read public directory").WithFile(publicDir)
	}
	if !info.IsDir() {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "public path is not a directory").WithFile(publicDir)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(writeConcurrency)

	walkErr := filepath.WalkDir(publicDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(publicDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(outDir, rel)

		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		g.Go(func() error {
			return copyFile(path, dst)
		})
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if walkErr != nil {
		return errors.WrapIO(walkErr, errors.ErrCodeWriteFailed, "failed to copy public directory").WithFile(publicDir)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeFileNotFound, "failed to open public file").WithFile(src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, "failed to create file").WithFile(dst)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, "failed to copy file").WithFile(dst)
	}
	if err := out.Close(); err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, "failed to close file").WithFile(dst)
	}
	return nil
}
