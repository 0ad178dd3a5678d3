// Package publish writes tasks out as markdown case files.
package publish

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"caseboard/internal/model"
)

type WriteOptions struct {
	Overwrite bool
	Title     string
}

type WriteResult struct {
	Written []string `json:"written"`
}

func outputDir(toDir string) (string, error) {
	toDir = strings.TrimSpace(toDir)
	if toDir == "" {
		return "", errors.New("missing --to")
	}
	return filepath.Clean(toDir), nil
}

// WriteTask writes <toDir>/tasks/<id>.md.
func WriteTask(t model.Task, toDir string, opt WriteOptions) (WriteResult, error) {
	if strings.TrimSpace(t.ID) == "" {
		return WriteResult{}, errors.New("missing task id")
	}
	dir, err := outputDir(toDir)
	if err != nil {
		return WriteResult{}, err
	}
	tasksDir := filepath.Join(dir, "tasks")
	if err := os.MkdirAll(tasksDir, 0o755); err != nil {
		return WriteResult{}, err
	}
	p := filepath.Join(tasksDir, t.ID+".md")
	if err := writeFile(p, []byte(RenderTaskMarkdown(t)), opt.Overwrite); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Written: []string{p}}, nil
}

// WriteBoard writes index.md plus one page per task. It stops at the first
// error; pages already written are reported.
func WriteBoard(cols []model.Column, toDir string, opt WriteOptions) (WriteResult, error) {
	dir, err := outputDir(toDir)
	if err != nil {
		return WriteResult{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return WriteResult{}, err
	}
	indexPath := filepath.Join(dir, "index.md")
	if err := writeFile(indexPath, []byte(RenderBoardIndexMarkdown(opt.Title, cols)), opt.Overwrite); err != nil {
		return WriteResult{}, err
	}

	res := WriteResult{Written: []string{indexPath}}
	for _, c := range cols {
		for _, t := range c.Tasks {
			r, err := WriteTask(t, dir, opt)
			if err != nil {
				return res, err
			}
			res.Written = append(res.Written, r.Written...)
		}
	}
	return res, nil
}

func writeFile(path string, b []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.New("file exists (use --overwrite): " + path)
		}
	}
	return os.WriteFile(path, b, 0o644)
}
