// Package catalog provides the clue pools a match draws from.
package catalog

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/jason-s-yu/musicquiz/internal/models"
)

//go:embed data/*.json
var embedded embed.FS

// Catalog loads clues and describes what it can serve.
type Catalog interface {
	Load(ctx context.Context, sources, categories []string) ([]models.Clue, error)
	Index(ctx context.Context) (Index, error)
}

// Index lists the selectable sources and categories.
type Index struct {
	Sources    []string `json:"sources"`
	Categories []string `json:"categories"`
}

// entry is one track as stored in a source file.
type entry struct {
	Title string `json:"title"`
	Game  string `json:"game"`
	Link  string `json:"link"`
	Type  string `json:"type"`
}

// FileCatalog reads one JSON file per source ("red_blue.json", ...) from a filesystem.
type FileCatalog struct {
	fsys fs.FS
}

func NewFileCatalog(fsys fs.FS) *FileCatalog {
	return &FileCatalog{fsys: fsys}
}

// Embedded returns the catalog compiled into the binary.
func Embedded() *FileCatalog {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		panic(err)
	}
	return NewFileCatalog(sub)
}

// Dir returns a catalog backed by the JSON files in dir.
func Dir(dir string) *FileCatalog {
	return NewFileCatalog(os.DirFS(dir))
}

// Load returns the clues of the given sources, in source order then file order, whose category is
// among categories. Unknown sources are skipped.
func (c *FileCatalog) Load(ctx context.Context, sources, categories []string) ([]models.Clue, error) {
	var out []models.Clue
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clues, err := c.readSource(src)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, cl := range clues {
			if slices.Contains(categories, cl.Category) {
				out = append(out, cl)
			}
		}
	}
	return out, nil
}

func (c *FileCatalog) Index(ctx context.Context) (Index, error) {
	idx := Index{Sources: []string{}, Categories: []string{}}
	names, err := fs.Glob(c.fsys, "*.json")
	if err != nil {
		return idx, err
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return idx, err
		}
		src := strings.TrimSuffix(name, ".json")
		clues, err := c.readSource(src)
		if err != nil {
			return idx, err
		}
		idx.Sources = append(idx.Sources, src)
		for _, cl := range clues {
			if !slices.Contains(idx.Categories, cl.Category) {
				idx.Categories = append(idx.Categories, cl.Category)
			}
		}
	}
	slices.Sort(idx.Categories)
	return idx, nil
}

// All returns every clue in the catalog.
func (c *FileCatalog) All(ctx context.Context) ([]models.Clue, error) {
	idx, err := c.Index(ctx)
	if err != nil {
		return nil, err
	}
	return c.Load(ctx, idx.Sources, idx.Categories)
}

func (c *FileCatalog) readSource(src string) ([]models.Clue, error) {
	if src == "" || strings.ContainsAny(src, `/\.`) {
		return nil, fs.ErrNotExist
	}
	name := path.Clean(src + ".json")
	data, err := fs.ReadFile(c.fsys, name)
	if err != nil {
		return nil, err
	}
	var entries []entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	clues := make([]models.Clue, len(entries))
	for i, e := range entries {
		clues[i] = models.Clue{
			ID:       fmt.Sprintf("%s/%d", src, i),
			Title:    e.Title,
			Game:     e.Game,
			Link:     e.Link,
			Category: e.Type,
			Source:   src,
		}
	}
	return clues, nil
}
