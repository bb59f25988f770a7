// Package domain contains core models shared by the probe and its notifiers.
package domain

import "time"

// Report is the result of probing one ACME directory.
type Report struct {
	DirectoryID  string    `json:"directory_id"`
	DirectoryURL string    `json:"directory_url"`
	Healthy      bool      `json:"healthy"`
	CheckedAt    time.Time `json:"checked_at"`
	ElapsedMs    int64     `json:"elapsed_ms"`
	Endpoints    Endpoints `json:"endpoints"`
	Meta         Meta      `json:"meta"`
	// NonceObtained is set once newNonce answered with a Replay-Nonce header.
	NonceObtained     bool      `json:"nonce_obtained"`
	RetryAfterSeconds int64     `json:"retry_after_seconds,omitempty"`
	PageTitle         string    `json:"page_title,omitempty"`
	Failures          []Failure `json:"failures,omitempty"`
}

// Endpoints are the resource URLs advertised by a directory.
type Endpoints struct {
	NewNonce   string `json:"newNonce"`
	NewAccount string `json:"newAccount"`
	NewOrder   string `json:"newOrder"`
	NewAuthz   string `json:"newAuthz,omitempty"`
	RevokeCert string `json:"revokeCert"`
	KeyChange  string `json:"keyChange"`
}

// Meta is the optional directory metadata object.
type Meta struct {
	TermsOfService          string   `json:"termsOfService,omitempty"`
	Website                 string   `json:"website,omitempty"`
	CAAIdentities           []string `json:"caaIdentities,omitempty"`
	ExternalAccountRequired bool     `json:"externalAccountRequired,omitempty"`
}

// Failure is one failed probe step.
type Failure struct {
	Step        string `json:"step"`
	Method      string `json:"method"`
	URL         string `json:"url"`
	StatusCode  int    `json:"status_code,omitempty"`
	ProblemType string `json:"problem_type"`
	Detail      string `json:"detail,omitempty"`
}
