package maple

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/kiln/lib/db"
	"github.com/ValentinKolb/kiln/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/kiln/lib/db/util"
	"io"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum     = "MAPLEDB\x00" // File format identifier
	mapleVersion = 4             // Snapshot format version
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements an in-memory database with sharded data
type mapleImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for hash function
	shards    []*internal.Shard // Array of shards

	// quota accounting
	quotaBytes int          // Maximum accounted size (0 = unlimited)
	sizeBytes  atomic.Int64 // Current accounted size
	writeMu    sync.Mutex   // Serializes writers so that quota checks are exact
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards  int // Number of shards (0 = auto)
	QuotaBytes int // Maximum sum of key and value sizes (0 = unlimited)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards:  runtime.NumCPU(), // Auto-determine based on CPU count
		QuotaBytes: 0,                // No quota
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewMapleDB(opts *DBOptions) db.KVDB {

	// Generate default options if not provided
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	return &mapleImpl{
		numShards:  opts.NumShards,
		seed:       util.GenerateSeed(),
		shards:     newShards(opts.NumShards),
		quotaBytes: opts.QuotaBytes,
	}
}

// newShards creates n empty shards
func newShards(n int) []*internal.Shard {
	shards := make([]*internal.Shard, n)
	for i := 0; i < n; i++ {
		shards[i] = internal.NewShard()
	}
	return shards
}

// shardFor returns the shard responsible for key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) shardFor(key string) *internal.Shard {
	return internal.GetShard(util.HashString(key, maple.seed), maple.shards)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry with the given key and value.
// If the key already exists, the old value is overwritten.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Set(key string, value []byte) error {
	maple.writeMu.Lock()
	defer maple.writeMu.Unlock()

	shard := maple.shardFor(key)
	entry := internal.NewEntry(key, value)

	delta := entry.Size
	if old, ok := shard.Data.Load(key); ok {
		delta -= old.Size
	}
	if err := maple.checkQuota(delta); err != nil {
		return err
	}

	shard.Data.Store(key, entry)
	maple.sizeBytes.Add(int64(delta))
	return nil
}

// SetMany writes all entries or none of them.
// The quota is checked against the combined size change before anything is written.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetMany(entries map[string][]byte) error {
	maple.writeMu.Lock()
	defer maple.writeMu.Unlock()

	prepared := make(map[string]internal.Entry, len(entries))
	delta := 0
	for key, value := range entries {
		entry := internal.NewEntry(key, value)
		delta += entry.Size
		if old, ok := maple.shardFor(key).Data.Load(key); ok {
			delta -= old.Size
		}
		prepared[key] = entry
	}
	if err := maple.checkQuota(delta); err != nil {
		return err
	}

	for key, entry := range prepared {
		maple.shardFor(key).Data.Store(key, entry)
	}
	maple.sizeBytes.Add(int64(delta))
	return nil
}

// Delete removes an entry with the specified key and reports whether it existed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key string) bool {
	maple.writeMu.Lock()
	defer maple.writeMu.Unlock()

	old, loaded := maple.shardFor(key).Data.LoadAndDelete(key)
	if loaded {
		maple.sizeBytes.Add(-int64(old.Size))
	}
	return loaded
}

// checkQuota returns db.ErrQuotaExceeded if growing the database by delta bytes
// would exceed the quota. Must be called with writeMu held.
func (maple *mapleImpl) checkQuota(delta int) error {
	if maple.quotaBytes <= 0 || delta <= 0 {
		return nil
	}
	if next := maple.sizeBytes.Load() + int64(delta); next > int64(maple.quotaBytes) {
		return fmt.Errorf("%w: %d of %d bytes used, write needs %d more", db.ErrQuotaExceeded, maple.sizeBytes.Load(), maple.quotaBytes, delta)
	}
	return nil
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Query Operations
// --------------------------------------------------------------------------

// Get retrieves a copy of the value for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string) ([]byte, bool) {
	entry, ok := maple.shardFor(key).Data.Load(key)
	if !ok {
		return nil, false
	}

	data := make([]byte, len(entry.Value))
	copy(data, entry.Value)
	return data, true
}

// Has checks if a key exists in the database.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Has(key string) bool {
	_, ok := maple.shardFor(key).Data.Load(key)
	return ok
}

// Keys returns all keys with the given prefix in ascending order.
// The result is a consistent view per shard, not across shards.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Keys(prefix string) []string {
	keys := make([]string, 0)
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, _ internal.Entry) bool {
			if strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
			return true
		})
	}
	sort.Strings(keys)
	return keys
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

// Save writes all entries to w in the maple snapshot format:
//
//	magic | version (uint8) | count (uint64) | count * (keyLen uint32, key, valueLen uint32, value)
//
// Entries are written in key order so that equal databases produce equal snapshots.
func (maple *mapleImpl) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	keys := maple.Keys("")
	type entryToSave struct {
		key   string
		value []byte
	}
	dataEntries := make([]entryToSave, 0, len(keys))
	for _, key := range keys {
		if value, ok := maple.Get(key); ok {
			dataEntries = append(dataEntries, entryToSave{key, value})
		}
	}

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}

	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}

	if err := binary.Write(bw, binary.LittleEndian, uint64(len(dataEntries))); err != nil {
		return err
	}

	for _, item := range dataEntries {
		if err := writeChunk(bw, []byte(item.key)); err != nil {
			return err
		}
		if err := writeChunk(bw, item.value); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load replaces the content of the database with the snapshot read from r.
// On error the database is left unchanged.
func (maple *mapleImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}

	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}

	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	var dataCount uint64
	if err := binary.Read(br, binary.LittleEndian, &dataCount); err != nil {
		return err
	}

	loaded := make(map[string]internal.Entry)
	var size int64
	for i := uint64(0); i < dataCount; i++ {
		key, err := readChunk(br)
		if err != nil {
			return fmt.Errorf("read key %d: %w", i, err)
		}
		value, err := readChunk(br)
		if err != nil {
			return fmt.Errorf("read value %d: %w", i, err)
		}

		entry := internal.NewEntry(string(key), value)
		loaded[string(key)] = entry
		size += int64(entry.Size)
	}

	// the snapshot is fully parsed, now swap the content
	maple.writeMu.Lock()
	defer maple.writeMu.Unlock()

	for _, shard := range maple.shards {
		shard.Data.Clear()
	}
	for key, entry := range loaded {
		maple.shardFor(key).Data.Store(key, entry)
	}
	maple.sizeBytes.Store(size)

	return nil
}

// writeChunk writes a length prefixed byte slice
func writeChunk(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// readChunk reads a length prefixed byte slice
func readChunk(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// --------------------------------------------------------------------------
// Info and Features
// --------------------------------------------------------------------------

// GetInfo returns the current size, key count and feature set of the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	keys := 0
	for _, shard := range maple.shards {
		keys += shard.Data.Size()
	}

	supportedFeatures := []db.Feature{
		db.FeatureSet, db.FeatureSetMany,
		db.FeatureGet, db.FeatureHas, db.FeatureDelete, db.FeatureKeys,
		db.FeatureSave, db.FeatureLoad,
	}
	if maple.quotaBytes > 0 {
		supportedFeatures = append(supportedFeatures, db.FeatureQuota)
	}

	return db.DatabaseInfo{
		SizeBytes:         int(maple.sizeBytes.Load()),
		QuotaBytes:        maple.quotaBytes,
		Keys:              keys,
		DbType:            db.ImplMaple,
		SupportedFeatures: supportedFeatures,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureSetMany |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureKeys |
		db.FeatureSave |
		db.FeatureLoad
	if maple.quotaBytes > 0 {
		supportedFeatures |= db.FeatureQuota
	}
	return supportedFeatures&feature == feature
}

// Close releases the database. Maple holds no background resources, so this only drops the data.
func (maple *mapleImpl) Close() error {
	maple.writeMu.Lock()
	defer maple.writeMu.Unlock()

	for _, shard := range maple.shards {
		shard.Data.Clear()
	}
	maple.sizeBytes.Store(0)
	return nil
}
