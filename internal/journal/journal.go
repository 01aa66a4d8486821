// Package journal is the durable queue of accepted but not yet executed
// commands. Each entry is one file written with fsync, so a command accepted
// before a crash is replayed on the next start.
package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/peterbourgon/diskv/v3"
	"github.com/sherry5707/Messaging/internal/params"
)

// Record is one persisted command.
type Record struct {
	Key         string      `json:"-"`
	Kind        string      `json:"kind"`
	Params      *params.Set `json:"params"`
	SubmittedAt int64       `json:"submitted_at"`
}

// Journal persists records under a directory, one file per record.
type Journal struct {
	d   *diskv.Diskv
	mu  sync.Mutex
	seq uint64
}

// Open opens (or creates) a journal rooted at dir.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	j := &Journal{d: diskv.New(diskv.Options{
		BasePath:     dir,
		TempDir:      dir + ".tmp",
		Transform:    func(string) []string { return []string{} },
		CacheSizeMax: 0,
		FilePerm:     0600,
		PathPerm:     0700,
	})}
	for _, key := range j.keys() {
		if n, ok := sequenceOf(key); ok && n > j.seq {
			j.seq = n
		}
	}
	return j, nil
}

// Append persists a command and returns its key. Keys sort in append order.
func (j *Journal) Append(kind string, ps *params.Set) (string, error) {
	data, err := json.Marshal(Record{Kind: kind, Params: ps, SubmittedAt: time.Now().UnixMilli()})
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}

	j.mu.Lock()
	j.seq++
	key := fmt.Sprintf("%020d-%s", j.seq, uuid.NewString())
	j.mu.Unlock()

	if err := j.d.WriteStream(key, bytes.NewReader(data), true); err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}
	return key, nil
}

// Remove deletes a record. Removing an absent key is not an error.
func (j *Journal) Remove(key string) error {
	if !j.d.Has(key) {
		return nil
	}
	return j.d.Erase(key)
}

// Pending returns every record in append order. Records that cannot be
// decoded are returned in the second slice so the caller can log and drop
// them.
func (j *Journal) Pending() ([]Record, []string, error) {
	var out []Record
	var bad []string
	for _, key := range j.keys() {
		data, err := j.d.Read(key)
		if err != nil {
			return nil, nil, fmt.Errorf("read record %s: %w", key, err)
		}
		var r Record
		if err := json.Unmarshal(data, &r); err != nil || r.Params == nil {
			bad = append(bad, key)
			continue
		}
		r.Key = key
		out = append(out, r)
	}
	return out, bad, nil
}

// Len returns the number of records on disk.
func (j *Journal) Len() int {
	return len(j.keys())
}

func (j *Journal) keys() []string {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var keys []string
	for k := range j.d.Keys(ctx.Done()) {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sequenceOf(key string) (uint64, bool) {
	head, _, ok := strings.Cut(key, "-")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(head, 10, 64)
	return n, err == nil
}
