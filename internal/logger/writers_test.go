package logger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSafeCSVWriterConcurrentWrites(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "triggers.csv")
	logger := zap.NewNop()

	writer, err := NewSafeCSVWriter(testFile, []string{"campaign", "alert", "price"}, 50*time.Millisecond, logger)
	if err != nil {
		t.Fatalf("Failed to create safe CSV writer: %v", err)
	}
	defer writer.Close()

	var wg sync.WaitGroup
	numGoroutines := 5
	recordsPerGoroutine := 50

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				record := []string{
					fmt.Sprintf("campaign_%d", id),
					fmt.Sprintf("alert_%d", j),
					"1.5",
				}
				if err := writer.WriteRecord(record); err != nil {
					t.Errorf("Failed to write record: %v", err)
				}
			}
		}(i)
	}

	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		for i := 0; i < 10; i++ {
			if err := writer.Flush(); err != nil {
				logger.Error("CSV flush failed", zap.Error(err))
			}
			time.Sleep(20 * time.Millisecond)
		}
	}()

	wg.Wait()

	select {
	case <-flushDone:
	case <-time.After(2 * time.Second):
		t.Error("CSV flush goroutine timeout")
	}

	if err := writer.Flush(); err != nil {
		t.Errorf("Failed final flush: %v", err)
	}

	records, _ := writer.Stats()
	expectedRecords := uint64(numGoroutines * recordsPerGoroutine)
	if records != expectedRecords {
		t.Errorf("Expected %d records (excluding header), got %d", expectedRecords, records)
	}

	f, err := os.Open(testFile)
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read csv: %v", err)
	}
	if len(rows) != int(expectedRecords)+1 {
		t.Errorf("Expected %d rows including header, got %d", expectedRecords+1, len(rows))
	}
}

func TestSafeCSVWriterHeaderWrittenOnce(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "nested", "archive.csv")
	header := []string{"a", "b"}

	for i := 0; i < 2; i++ {
		w, err := NewSafeCSVWriter(testFile, header, time.Second, nil)
		if err != nil {
			t.Fatalf("Failed to open writer: %v", err)
		}
		if err := w.WriteRecord([]string{fmt.Sprint(i), "x"}); err != nil {
			t.Fatalf("Failed to write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Failed to close: %v", err)
		}
	}

	data, err := os.ReadFile(testFile)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if got, want := string(data), "a,b\n0,x\n1,x\n"; got != want {
		t.Errorf("Unexpected content %q, want %q", got, want)
	}
}

func TestSafeCSVWriterRejectsForeignHeader(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "archive.csv")
	if err := os.WriteFile(testFile, []byte("x,y\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewSafeCSVWriter(testFile, []string{"a", "b"}, time.Second, nil)
	if !errors.Is(err, ErrHeaderMismatch) {
		t.Fatalf("expected ErrHeaderMismatch, got %v", err)
	}
}

func TestSafeCSVWriterClosed(t *testing.T) {
	w, err := NewSafeCSVWriter(filepath.Join(t.TempDir(), "a.csv"), []string{"a"}, time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
	if err := w.WriteRecord([]string{"1"}); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("expected ErrWriterClosed, got %v", err)
	}
	if err := w.Flush(); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("expected ErrWriterClosed from Flush, got %v", err)
	}
}
