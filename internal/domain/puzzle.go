package domain

import (
	"fmt"
	"strconv"
)

// Puzzle is a catalog entry that can be minted as an NFT.
type Puzzle struct {
	ID          int    `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	ImagePath   string `yaml:"image_path" json:"image_path"`
	Difficulty  string `yaml:"difficulty" json:"difficulty"`
	Moves       int    `yaml:"moves" json:"moves"`
	Solution    string `yaml:"solution" json:"-"`
}

// PuzzleCategory is the Category trait of every puzzle token.
const PuzzleCategory = "詰め将棋"

// Attributes returns the puzzle traits for the metadata document.
// The solution is not part of the public metadata.
func (p Puzzle) Attributes() []Attribute {
	return []Attribute{
		{TraitType: "Category", Value: PuzzleCategory},
		{TraitType: "Difficulty", Value: p.Difficulty},
		{TraitType: "Moves", Value: strconv.Itoa(p.Moves)},
	}
}

// Validate checks required fields.
func (p Puzzle) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("puzzle id must be positive, got %d", p.ID)
	}
	if p.Name == "" {
		return fmt.Errorf("puzzle %d: name is required", p.ID)
	}
	if p.ImagePath == "" {
		return fmt.Errorf("puzzle %d: image_path is required", p.ID)
	}
	return nil
}
