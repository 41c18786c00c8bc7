// Package catalog loads the puzzles that can be minted.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"puzzle-mint/internal/domain"
	"puzzle-mint/internal/mint"
)

// ErrPuzzleNotFound is returned when a puzzle ID is not in the catalog.
var ErrPuzzleNotFound = errors.New("puzzle not found")

//go:embed default.yaml
var defaultCatalog []byte

// Catalog is an ordered set of puzzles.
type Catalog struct {
	Symbol  string          `yaml:"symbol"`
	Puzzles []domain.Puzzle `yaml:"puzzles"`

	// baseDir resolves relative image paths.
	baseDir string
	byID    map[int]int
}

// Load reads a YAML catalog file. Relative image paths resolve against the
// file's directory.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

// Default returns the built-in catalog. Relative image paths resolve
// against baseDir.
func Default(baseDir string) (*Catalog, error) {
	return Parse(defaultCatalog, baseDir)
}

// Parse decodes a YAML catalog.
func Parse(data []byte, baseDir string) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if c.Symbol == "" {
		c.Symbol = mint.DefaultSymbol
	}
	c.baseDir = baseDir

	sort.SliceStable(c.Puzzles, func(i, j int) bool { return c.Puzzles[i].ID < c.Puzzles[j].ID })
	c.byID = make(map[int]int, len(c.Puzzles))
	for i, p := range c.Puzzles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid catalog: %w", err)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("invalid catalog: duplicate puzzle id %d", p.ID)
		}
		c.byID[p.ID] = i
	}
	return &c, nil
}

// Get returns the puzzle with the given ID.
func (c *Catalog) Get(id int) (domain.Puzzle, error) {
	i, ok := c.byID[id]
	if !ok {
		return domain.Puzzle{}, fmt.Errorf("%w: %d", ErrPuzzleNotFound, id)
	}
	return c.Puzzles[i], nil
}

// ImagePath returns the resolved path of the puzzle image.
func (c *Catalog) ImagePath(p domain.Puzzle) string {
	if filepath.IsAbs(p.ImagePath) {
		return p.ImagePath
	}
	return filepath.Join(c.baseDir, p.ImagePath)
}

// MintInput reads the puzzle image and builds the mint input.
func (c *Catalog) MintInput(p domain.Puzzle) (mint.MintInput, error) {
	path := c.ImagePath(p)
	data, err := os.ReadFile(path)
	if err != nil {
		return mint.MintInput{}, fmt.Errorf("read image for puzzle %d: %w", p.ID, err)
	}

	ext := filepath.Ext(path)
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	id := p.ID
	return mint.MintInput{
		PuzzleID:    &id,
		Name:        p.Name,
		Description: p.Description,
		Symbol:      c.Symbol,
		Image: mint.Image{
			Filename:    fmt.Sprintf("tsume-%d%s", p.ID, ext),
			ContentType: contentType,
			Data:        data,
		},
		Attributes: p.Attributes(),
	}, nil
}
