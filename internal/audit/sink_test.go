package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFileSink_MirrorsRecordsAsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "audit.jsonl")
	log := NewLog(WithSink(NewFileSink(path)), WithClock(fixedClock()))

	log.Append(Entry{Tool: "read_file", Args: `path="a.txt"`, Risk: "SAFE", Decision: DecisionAllowed})
	log.Append(Entry{Tool: "read_file", Args: `path="a.txt"`, Risk: "SAFE", Decision: DecisionExecuted, Detail: "2B"})

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open audit file error: %v", err)
	}
	defer file.Close()

	var mirrored []Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshal line error: %v", err)
		}
		mirrored = append(mirrored, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan audit file error: %v", err)
	}
	if len(mirrored) != 2 {
		t.Fatalf("expected 2 jsonl lines, got %d", len(mirrored))
	}
	if mirrored[1].Decision != DecisionExecuted || mirrored[1].Detail != "2B" {
		t.Fatalf("unexpected second line: %+v", mirrored[1])
	}
	if err := VerifyChain(mirrored); err != nil {
		t.Fatalf("expected mirrored chain to verify, got %v", err)
	}
}

func TestFileSink_MkdirAllFailure(t *testing.T) {
	workspace := t.TempDir()
	blocker := filepath.Join(workspace, "state")
	if err := os.WriteFile(blocker, []byte("not-a-dir"), 0644); err != nil {
		t.Fatalf("WriteFile blocker error: %v", err)
	}

	sink := NewFileSink(filepath.Join(blocker, "audit.jsonl"))
	if err := sink.Write(Record{Seq: 1}); err == nil {
		t.Fatal("expected write error when state path is a file")
	}
}
