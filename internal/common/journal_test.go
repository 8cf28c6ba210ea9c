package common

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "journal.jsonl")
	j := NewJournal(path)
	require.NoError(t, j.Append(JournalEntry{Input: "a.cnf", Outputs: []string{"a.txt"}, Channels: 1024, Total: 42}))
	require.NoError(t, j.Append(JournalEntry{Input: "b.cnf", Error: "cnf format error: verify: bad magic", ErrOffset: 0x1E}))

	entries, err := ReadJournal(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.cnf", entries[0].Input)
	assert.False(t, entries[0].Failed())
	assert.False(t, entries[0].Ts.IsZero())
	assert.True(t, entries[1].Failed())
	assert.EqualValues(t, 0x1E, entries[1].ErrOffset)
}

func TestJournalRejectsIncompleteEntries(t *testing.T) {
	var nilJournal *Journal
	assert.Error(t, nilJournal.Append(JournalEntry{Input: "x"}))
	assert.Equal(t, "", nilJournal.Path())
	j := NewJournal(filepath.Join(t.TempDir(), "j.jsonl"))
	assert.Error(t, j.Append(JournalEntry{}))
}

func TestJournalConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.jsonl")
	j := NewJournal(path)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, j.Append(JournalEntry{Input: "same.cnf"}))
		}()
	}
	wg.Wait()
	entries, err := ReadJournal(path)
	require.NoError(t, err)
	assert.Len(t, entries, 16)
}
