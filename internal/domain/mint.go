package domain

import "time"

// MintRequest describes the token to create. It is built once per mint
// series and reused unchanged across attempts.
type MintRequest struct {
	LocatorURI         string // metadata document locator
	Name               string
	Symbol             string
	RoyaltyBasisPoints uint16
	Mutable            bool
}

// NewMintRequest returns a request with zero royalty and mutable metadata.
func NewMintRequest(locatorURI, name, symbol string) MintRequest {
	return MintRequest{
		LocatorURI:         locatorURI,
		Name:               name,
		Symbol:             symbol,
		RoyaltyBasisPoints: 0,
		Mutable:            true,
	}
}

// SubmissionRecord is created once per attempt and never mutated.
// Kept in memory for diagnostics only.
type SubmissionRecord struct {
	Signature       string
	CheckpointToken string
	TokenAddress    string // mint account created by this attempt
	AttemptIndex    int    // 1-based
	SubmittedAt     time.Time
}

// MintOutcome is returned to the caller on success.
type MintOutcome struct {
	TokenAddress string
	Signature    string
}

// Attribute is a single trait in the metadata document.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Metadata is the fixed-schema descriptor uploaded before minting.
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`
}
