package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ChainError names the first record whose sequence or hash is inconsistent.
type ChainError struct {
	Seq    uint64
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit chain broken at seq %d: %s", e.Seq, e.Reason)
}

// canonicalRecord fixes field order for hashing; every field but Hash.
type canonicalRecord struct {
	Seq      uint64 `json:"seq"`
	Time     string `json:"ts"`
	Tool     string `json:"tool"`
	Args     string `json:"args"`
	Risk     string `json:"risk"`
	Decision string `json:"decision"`
	Detail   string `json:"detail"`
	ActionID string `json:"action_id"`
	PrevHash string `json:"prev_hash"`
}

func hashRecord(r Record) string {
	c := canonicalRecord{
		Seq:      r.Seq,
		Time:     r.Time.UTC().Format(time.RFC3339Nano),
		Tool:     norm.NFC.String(r.Tool),
		Args:     norm.NFC.String(r.Args),
		Risk:     norm.NFC.String(r.Risk),
		Decision: norm.NFC.String(string(r.Decision)),
		Detail:   norm.NFC.String(r.Detail),
		ActionID: norm.NFC.String(r.ActionID),
		PrevHash: r.PrevHash,
	}
	// Marshal cannot fail for a struct of strings and integers.
	encoded, _ := json.Marshal(c)
	sum := sha256.Sum256(encoded)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// VerifyChain checks that records are numbered 1..n without gaps and that
// every hash matches its content and links to its predecessor.
func VerifyChain(records []Record) error {
	prev := ""
	for i, r := range records {
		want := uint64(i) + 1
		if r.Seq != want {
			return &ChainError{Seq: r.Seq, Reason: fmt.Sprintf("expected seq %d", want)}
		}
		if r.PrevHash != prev {
			return &ChainError{Seq: r.Seq, Reason: "prev_hash does not match previous record"}
		}
		if got := hashRecord(r); got != r.Hash {
			return &ChainError{Seq: r.Seq, Reason: "hash does not match record content"}
		}
		prev = r.Hash
	}
	return nil
}
