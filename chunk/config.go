package chunk

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

// Config is immutable once constructed by NewConfig/LoadConfig.
// Exactly one of (ChunkDataSize) or (ChunkDataUnitSize, ChunkDataCount)
// selects variable- or fixed-record mode.
type Config struct {
	// ChunkDataSize, when > 0, selects variable-record mode: the data
	// region is exactly this many bytes.
	ChunkDataSize int64

	// ChunkDataUnitSize and ChunkDataCount, when both > 0, select
	// fixed-record mode: the data region is unitSize*count bytes and
	// every record occupies exactly unitSize bytes.
	ChunkDataUnitSize int64
	ChunkDataCount    int64

	// MaxLogRecordSize bounds a single variable-length record's payload.
	MaxLogRecordSize int

	// ChunkReaderCount sizes the bounded reader-handle pool; must be >= 1.
	ChunkReaderCount int

	// MessageChunkCacheMaxPercent (0-100) is the memory budget for
	// mirroring completed chunks: a mirror is admitted only if the host's
	// used memory plus the chunk's size stays within this percentage of
	// total physical memory.
	MessageChunkCacheMaxPercent int

	// ForceCacheChunk bypasses the memory budget check entirely.
	ForceCacheChunk bool
}

// IsFixedMode reports whether this config selects fixed-record mode.
func (c Config) IsFixedMode() bool {
	return c.ChunkDataUnitSize > 0 && c.ChunkDataCount > 0
}

// DataRegionSize returns the planned size in bytes of the chunk's data
// region, derived from whichever mode is selected.
func (c Config) DataRegionSize() int64 {
	if c.IsFixedMode() {
		return c.ChunkDataUnitSize * c.ChunkDataCount
	}
	return c.ChunkDataSize
}

// NewConfig validates and returns a Config. Validation happens once
// here rather than on every operation.
func NewConfig(c Config) (Config, error) {
	fixed := c.ChunkDataUnitSize > 0 && c.ChunkDataCount > 0
	variable := c.ChunkDataSize > 0
	switch {
	case fixed && variable:
		return Config{}, fmt.Errorf("chunk: config selects both fixed and variable record mode")
	case !fixed && !variable:
		return Config{}, fmt.Errorf("chunk: config selects neither fixed nor variable record mode")
	}
	if fixed && (c.ChunkDataUnitSize <= 0 || c.ChunkDataCount <= 0) {
		return Config{}, fmt.Errorf("chunk: fixed mode requires chunk_data_unit_size>0 and chunk_data_count>0")
	}
	if variable && c.MaxLogRecordSize <= 0 {
		return Config{}, fmt.Errorf("chunk: variable mode requires max_log_record_size>0")
	}
	if c.ChunkReaderCount < 1 {
		return Config{}, fmt.Errorf("chunk: chunk_reader_count must be >= 1, got %d", c.ChunkReaderCount)
	}
	if c.MessageChunkCacheMaxPercent < 0 || c.MessageChunkCacheMaxPercent > 100 {
		return Config{}, fmt.Errorf("chunk: message_chunk_cache_max_percent must be in [0,100], got %d",
			c.MessageChunkCacheMaxPercent)
	}
	return c, nil
}

// yamlConfig is the decode target for snake_case YAML keys; values are
// validated through the same NewConfig path programmatic callers use.
type yamlConfig struct {
	ChunkDataSize               int64 `yaml:"chunk_data_size"`
	ChunkDataUnitSize           int64 `yaml:"chunk_data_unit_size"`
	ChunkDataCount              int64 `yaml:"chunk_data_count"`
	MaxLogRecordSize            int   `yaml:"max_log_record_size"`
	ChunkReaderCount            int   `yaml:"chunk_reader_count"`
	MessageChunkCacheMaxPercent int   `yaml:"message_chunk_cache_max_percent"`
	ForceCacheChunk             bool  `yaml:"force_cache_chunk"`
}

// LoadConfig parses YAML bytes into a validated Config.
func LoadConfig(data []byte) (Config, error) {
	var aux yamlConfig
	if err := yaml.Unmarshal(data, &aux); err != nil {
		return Config{}, fmt.Errorf("chunk: parse yaml config: %w", err)
	}
	return NewConfig(Config{
		ChunkDataSize:               aux.ChunkDataSize,
		ChunkDataUnitSize:           aux.ChunkDataUnitSize,
		ChunkDataCount:              aux.ChunkDataCount,
		MaxLogRecordSize:            aux.MaxLogRecordSize,
		ChunkReaderCount:            aux.ChunkReaderCount,
		MessageChunkCacheMaxPercent: aux.MessageChunkCacheMaxPercent,
		ForceCacheChunk:             aux.ForceCacheChunk,
	})
}
