package models

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Category names a TRACER bulk report. The values match the names the portal
// uses in its download URLs.
type Category string

const (
	ContributionData Category = "ContributionData"
	ExpenditureData  Category = "ExpenditureData"
	LoanData         Category = "LoanData"
)

// Categories lists every report category in download order.
var Categories = []Category{ContributionData, ExpenditureData, LoanData}

func (c Category) String() string {
	return string(c)
}

// IsValid reports whether c is one of the three recognised categories.
func (c Category) IsValid() bool {
	switch c {
	case ContributionData, ExpenditureData, LoanData:
		return true
	}
	return false
}

// Status keys written onto every interpreted record.
const (
	AmountsInterpreted       = "AmountsInterpreted"
	DatesInterpreted         = "DatesInterpreted"
	BooleanFieldsInterpreted = "BooleanFieldsInterpreted"
)

// RecordIDField is the source column holding the stable record identifier.
const RecordIDField = "RecordID"

// Record is one disclosure line item keyed by CSV header. Raw records hold
// strings only; interpretation replaces values in place with float64,
// time.Time or bool.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RecordID returns the record identifier as a string, or "" when absent.
func (r Record) RecordID() string {
	switch v := r[RecordIDField].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Flag returns the boolean stored under key, false when absent or not a bool.
func (r Record) Flag(key string) bool {
	b, _ := r[key].(bool)
	return b
}

type AppError struct {
	ArchiveID string
	Message   string
	Err       error
	Record    Record
}

func (e *AppError) Error() string {
	var recordDetails string
	if e.Record != nil {
		recordJSON, err := json.Marshal(e.Record)
		if err != nil {
			recordDetails = "failed to marshal record to JSON"
		} else {
			recordDetails = string(recordJSON)
		}
	}

	if e.Err != nil {
		if recordDetails != "" {
			return fmt.Sprintf("ArchiveID %s: %s - %v - Record: %s", e.ArchiveID, e.Message, e.Err, recordDetails)
		}
		return fmt.Sprintf("ArchiveID %s: %s - %v", e.ArchiveID, e.Message, e.Err)
	}

	if recordDetails != "" {
		return fmt.Sprintf("ArchiveID %s: %s - Record: %s", e.ArchiveID, e.Message, recordDetails)
	}

	return fmt.Sprintf("ArchiveID %s: %s", e.ArchiveID, e.Message)
}

// MarshalJSON stores the error text alongside the message so the archive
// status row keeps something readable after the error value is gone.
func (e AppError) MarshalJSON() ([]byte, error) {
	var errText string
	if e.Err != nil {
		errText = e.Err.Error()
	}
	return json.Marshal(struct {
		ArchiveID string `json:"archive_id"`
		Message   string `json:"message"`
		Err       string `json:"error,omitempty"`
		RecordID  string `json:"record_id,omitempty"`
	}{e.ArchiveID, e.Message, errText, e.Record.RecordID()})
}

// ArchiveJob is a downloaded archive waiting to be parsed.
type ArchiveJob struct {
	ArchiveID string
	Year      int
	Category  Category
	URL       string
	Data      []byte
}

// ArchiveInfo describes an archive to fetch.
type ArchiveInfo struct {
	Year     int
	Category Category
	URL      string
}

type ArchiveErrorMap struct {
	Errors map[string][]AppError
	Mu     sync.Mutex
}

// InterpretationStats counts, per archive, records whose field groups failed
// to convert.
type InterpretationStats struct {
	Records        int `json:"records"`
	AmountFailures int `json:"amount_failures"`
	DateFailures   int `json:"date_failures"`
	FlagFailures   int `json:"flag_failures"`
}

// Add folds one interpreted record into the counters.
func (s *InterpretationStats) Add(r Record) {
	s.Records++
	if !r.Flag(AmountsInterpreted) {
		s.AmountFailures++
	}
	if !r.Flag(DatesInterpreted) {
		s.DateFailures++
	}
	if !r.Flag(BooleanFieldsInterpreted) {
		s.FlagFailures++
	}
}

type ArchiveStatsMap struct {
	Stats map[string]*InterpretationStats
	Mu    sync.Mutex
}

// InterpretedRecord travels from parser workers to DB workers.
type InterpretedRecord struct {
	ArchiveID string
	Record    Record
}

type ExtractionChannels struct {
	Results map[Category]chan *InterpretedRecord
	Errors  chan AppError
	Jobs    chan ArchiveJob
}

type ExtractionWaitGroups struct {
	ParserWg *sync.WaitGroup
	DbWg     *sync.WaitGroup
	MainWg   *sync.WaitGroup
}

type ArchiveMap = map[string]ArchiveInfo

type SetupReturn struct {
	Channels        *ExtractionChannels
	WaitGroups      *ExtractionWaitGroups
	ArchiveMap      *ArchiveMap
	ArchiveErrorMap *ArchiveErrorMap
	ArchiveStats    *ArchiveStatsMap
}

func (s *SetupReturn) GetValues() (*ExtractionChannels, *ExtractionWaitGroups, *ArchiveMap, *ArchiveErrorMap, *ArchiveStatsMap) {
	return s.Channels, s.WaitGroups, s.ArchiveMap, s.ArchiveErrorMap, s.ArchiveStats
}

// Document is a record reshaped for storage: renamed camelCase keys, the
// address lines folded into one field, and recordId as the upsert key.
type Document map[string]any

// DocumentIDField is the storage key documents are upserted by.
const DocumentIDField = "recordId"

// ID returns the upsert key of d, or "" when absent.
func (d Document) ID() string {
	s, _ := d[DocumentIDField].(string)
	return s
}

// ArchiveRecord is the bookkeeping row kept per downloaded archive.
type ArchiveRecord struct {
	ID          string
	RunID       string
	URL         string
	Year        int
	Category    Category
	Checksum    string
	Status      string
	ProcessedAt time.Time
}
