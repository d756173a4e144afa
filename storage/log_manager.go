package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"
)

// LogType represents the type of log record
type LogType byte

const (
	LogUpdate LogType = iota
	LogNewPage
	LogDeletePage
	LogCheckpoint
)

// String returns string representation of LogType
func (lt LogType) String() string {
	switch lt {
	case LogUpdate:
		return "UPDATE"
	case LogNewPage:
		return "NEW_PAGE"
	case LogDeletePage:
		return "DELETE_PAGE"
	case LogCheckpoint:
		return "CHECKPOINT"
	default:
		return "UNKNOWN"
	}
}

// LogRecord represents a single WAL entry
type LogRecord struct {
	LSN        LSN     // Log sequence number (unique, monotonic)
	PrevLSN    LSN     // Previous LSN for this transaction
	TxnID      uint64  // Transaction ID
	Type       LogType // Type of operation
	PageID     PageID  // Affected page
	BeforeData []byte  // Old bytes (for UNDO)
	AfterData  []byte  // New bytes (for REDO)
}

const logRecordHeaderSize = 8 + 8 + 8 + 1 + 4 // LSN, PrevLSN, TxnID, Type, PageID

// Serialize converts the record to bytes.
// Format: LSN(8) | PrevLSN(8) | TxnID(8) | Type(1) | PageID(4) |
// BeforeLen(2) | BeforeData | AfterLen(2) | AfterData
func (lr *LogRecord) Serialize() ([]byte, error) {
	beforeLen := len(lr.BeforeData)
	afterLen := len(lr.AfterData)
	if beforeLen > math.MaxUint16 || afterLen > math.MaxUint16 {
		return nil, fmt.Errorf("log record data too large: before=%d after=%d", beforeLen, afterLen)
	}

	buf := make([]byte, logRecordHeaderSize+2+beforeLen+2+afterLen)
	offset := 0

	binary.LittleEndian.PutUint64(buf[offset:], uint64(lr.LSN))
	offset += 8
	binary.LittleEndian.PutUint64(buf[offset:], uint64(lr.PrevLSN))
	offset += 8
	binary.LittleEndian.PutUint64(buf[offset:], lr.TxnID)
	offset += 8
	buf[offset] = byte(lr.Type)
	offset++
	binary.LittleEndian.PutUint32(buf[offset:], uint32(lr.PageID))
	offset += 4

	binary.LittleEndian.PutUint16(buf[offset:], uint16(beforeLen))
	offset += 2
	copy(buf[offset:], lr.BeforeData)
	offset += beforeLen

	binary.LittleEndian.PutUint16(buf[offset:], uint16(afterLen))
	offset += 2
	copy(buf[offset:], lr.AfterData)

	return buf, nil
}

// DeserializeLogRecord creates a record from bytes.
func DeserializeLogRecord(data []byte) (*LogRecord, error) {
	minSize := logRecordHeaderSize + 2 + 2
	if len(data) < minSize {
		return nil, fmt.Errorf("data too short for log record: %d bytes (need at least %d)", len(data), minSize)
	}

	lr := &LogRecord{}
	offset := 0

	lr.LSN = LSN(binary.LittleEndian.Uint64(data[offset:]))
	offset += 8
	lr.PrevLSN = LSN(binary.LittleEndian.Uint64(data[offset:]))
	offset += 8
	lr.TxnID = binary.LittleEndian.Uint64(data[offset:])
	offset += 8
	lr.Type = LogType(data[offset])
	offset++
	lr.PageID = PageID(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4

	beforeLen := int(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2
	if offset+beforeLen > len(data) {
		return nil, fmt.Errorf("invalid before data length: need %d bytes, have %d", beforeLen, len(data)-offset)
	}
	if beforeLen > 0 {
		lr.BeforeData = make([]byte, beforeLen)
		copy(lr.BeforeData, data[offset:offset+beforeLen])
		offset += beforeLen
	}

	if offset+2 > len(data) {
		return nil, fmt.Errorf("data truncated before after-data length")
	}
	afterLen := int(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2
	if offset+afterLen > len(data) {
		return nil, fmt.Errorf("invalid after data length: need %d bytes, have %d", afterLen, len(data)-offset)
	}
	if afterLen > 0 {
		lr.AfterData = make([]byte, afterLen)
		copy(lr.AfterData, data[offset:offset+afterLen])
	}

	return lr, nil
}

// LogManager maintains the write-ahead log: records accumulate in a memory
// buffer and reach disk on Flush, which the buffer pool calls before any
// dirty page write-back. Records are individually framed on disk as
// frameLen(4) | algorithm(1) | rawLen(4) | payload, where the payload is
// the serialized record after optional compression.
type LogManager struct {
	logFile       *os.File
	currentLSN    LSN
	flushedLSN    LSN
	buffer        []byte
	maxBufferSize int
	compression   LogCompression
	mutex         sync.Mutex
}

const (
	DefaultLogBufferSize = 64 * 1024
	logFrameHeaderSize   = 4 + 1 + 4
)

// NewLogManager creates an uncompressed log manager.
func NewLogManager(logFileName string) (*LogManager, error) {
	return NewLogManagerWithCompression(logFileName, LogCompressionNone)
}

// NewLogManagerWithCompression creates a log manager that compresses record
// payloads with the given algorithm.
func NewLogManagerWithCompression(logFileName string, compression LogCompression) (*LogManager, error) {
	file, err := os.OpenFile(logFileName, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	lm := &LogManager{
		logFile:       file,
		buffer:        make([]byte, 0, DefaultLogBufferSize),
		maxBufferSize: DefaultLogBufferSize,
		compression:   compression,
	}

	// Recover the LSN cursor from an existing log.
	fileInfo, err := file.Stat()
	if err == nil && fileInfo.Size() > 0 {
		records, err := lm.readLogsFromFile()
		if err == nil && len(records) > 0 {
			last := records[len(records)-1]
			lm.currentLSN = last.LSN
			lm.flushedLSN = last.LSN
		}
	}

	return lm, nil
}

// AppendLog assigns the record its LSN, frames it into the log buffer and
// returns the LSN. The buffer drains to disk when it passes the buffer
// limit or on an explicit Flush.
func (lm *LogManager) AppendLog(record *LogRecord) (LSN, error) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	lm.currentLSN++
	record.LSN = lm.currentLSN

	blob, err := record.Serialize()
	if err != nil {
		return InvalidLSN, err
	}

	payload, alg, err := encodeLogBlob(lm.compression, blob)
	if err != nil {
		return InvalidLSN, err
	}

	frame := make([]byte, logFrameHeaderSize)
	binary.LittleEndian.PutUint32(frame[0:], uint32(len(payload)))
	frame[4] = byte(alg)
	binary.LittleEndian.PutUint32(frame[5:], uint32(len(blob)))

	lm.buffer = append(lm.buffer, frame...)
	lm.buffer = append(lm.buffer, payload...)

	if len(lm.buffer) >= lm.maxBufferSize {
		if err := lm.flushLocked(); err != nil {
			return InvalidLSN, err
		}
	}

	return record.LSN, nil
}

// Flush writes the buffered records to disk and fsyncs. After Flush returns,
// every record appended before the call is durable.
func (lm *LogManager) Flush() error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	return lm.flushLocked()
}

func (lm *LogManager) flushLocked() error {
	if len(lm.buffer) == 0 {
		return nil
	}

	if _, err := lm.logFile.Write(lm.buffer); err != nil {
		return fmt.Errorf("failed to write log buffer: %w", err)
	}
	if err := lm.logFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}

	lm.buffer = lm.buffer[:0]
	lm.flushedLSN = lm.currentLSN
	return nil
}

// CurrentLSN returns the LSN of the most recently appended record.
func (lm *LogManager) CurrentLSN() LSN {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	return lm.currentLSN
}

// FlushedLSN returns the LSN up to which the log is durable.
func (lm *LogManager) FlushedLSN() LSN {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	return lm.flushedLSN
}

// ReadLogs flushes pending records and returns every record in the log in
// append order.
func (lm *LogManager) ReadLogs() ([]*LogRecord, error) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if err := lm.flushLocked(); err != nil {
		return nil, err
	}
	return lm.readLogsFromFile()
}

// readLogsFromFile scans the log file from the start. Must be called with
// the mutex held (or before the manager is shared).
func (lm *LogManager) readLogsFromFile() ([]*LogRecord, error) {
	data, err := os.ReadFile(lm.logFile.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	var records []*LogRecord
	offset := 0
	for offset < len(data) {
		if offset+logFrameHeaderSize > len(data) {
			return records, ErrLogCorrupted("ReadLogs", lm.currentLSN)
		}
		payloadLen := int(binary.LittleEndian.Uint32(data[offset:]))
		alg := LogCompression(data[offset+4])
		rawLen := int(binary.LittleEndian.Uint32(data[offset+5:]))
		offset += logFrameHeaderSize

		if offset+payloadLen > len(data) {
			return records, ErrLogCorrupted("ReadLogs", lm.currentLSN)
		}

		blob, err := decodeLogBlob(alg, data[offset:offset+payloadLen], rawLen)
		if err != nil {
			return records, NewStorageError(ErrCodeLogCorrupted, "ReadLogs", "log payload decode failed", err)
		}
		offset += payloadLen

		record, err := DeserializeLogRecord(blob)
		if err != nil {
			return records, NewStorageError(ErrCodeLogCorrupted, "ReadLogs", "log record decode failed", err)
		}
		records = append(records, record)
	}

	return records, nil
}

// Close flushes pending records and closes the log file.
func (lm *LogManager) Close() error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if err := lm.flushLocked(); err != nil {
		return err
	}
	return lm.logFile.Close()
}
