package recipients

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ignite/bulk-mailer/internal/config"
	"github.com/ignite/bulk-mailer/internal/domain"
	"github.com/ignite/bulk-mailer/internal/pkg/logger"
)

// Default scan limits.
const (
	DefaultMaxRecipients  = domain.DefaultMaxRecipients
	DefaultMaxRows        = 100000
	DefaultMaxCellsPerRow = 100
)

var tokenSplit = regexp.MustCompile(`[\s,;]+`)

// RowSource yields tabular rows one at a time. Next returns io.EOF when the
// source is exhausted.
type RowSource interface {
	Next() ([]string, error)
}

// Limits bounds a single extraction.
type Limits struct {
	MaxRecipients  int
	MaxRows        int
	MaxCellsPerRow int
}

// LimitsFromConfig reads the scan limits from the mailer config.
func LimitsFromConfig(cfg config.MailerConfig) Limits {
	return Limits{
		MaxRecipients:  cfg.MaxRecipients,
		MaxRows:        cfg.MaxRows,
		MaxCellsPerRow: cfg.MaxCellsPerRow,
	}
}

func (l Limits) withDefaults() Limits {
	if l.MaxRecipients <= 0 {
		l.MaxRecipients = DefaultMaxRecipients
	}
	if l.MaxRows <= 0 {
		l.MaxRows = DefaultMaxRows
	}
	if l.MaxCellsPerRow <= 0 {
		l.MaxCellsPerRow = DefaultMaxCellsPerRow
	}
	return l
}

// Extractor validates and collects recipient addresses.
type Extractor struct {
	limits   Limits
	validate *validator.Validate
	log      *logger.Logger
}

// NewExtractor creates an extractor. Zero limits fall back to the defaults.
func NewExtractor(limits Limits) *Extractor {
	return &Extractor{
		limits:   limits.withDefaults(),
		validate: validator.New(),
		log:      logger.Named("recipients"),
	}
}

// Extract collects addresses from free text and an optional row source.
// Either input may be empty. A read error on rows ends the tabular scan; the
// addresses accepted so far are kept.
func (e *Extractor) Extract(freeText string, rows RowSource) *domain.RecipientSet {
	result := domain.NewRecipientSet(e.limits.MaxRecipients)
	result.Merge(e.FromText(freeText))
	if rows != nil {
		result.Merge(e.FromRows(rows))
	}
	return result
}

// ExtractFile is Extract with an uploaded CSV or TXT file as the tabular source.
func (e *Extractor) ExtractFile(freeText string, file io.Reader) *domain.RecipientSet {
	var rows RowSource
	if file != nil {
		rows = NewCSVSource(file)
	}
	return e.Extract(freeText, rows)
}

// FromText scans free text until the recipient cap is reached.
func (e *Extractor) FromText(text string) *domain.RecipientSet {
	set := domain.NewRecipientSet(e.limits.MaxRecipients)
	e.collect(set, text)
	return set
}

// FromRows scans rows until the row limit or the recipient cap is reached.
func (e *Extractor) FromRows(rows RowSource) *domain.RecipientSet {
	set := domain.NewRecipientSet(e.limits.MaxRecipients)
	processed := 0
	for processed < e.limits.MaxRows && !set.Full() {
		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			e.log.Warn("recipient file scan stopped", "row", processed, "error", err)
			break
		}
		processed++
		if len(row) > e.limits.MaxCellsPerRow {
			row = row[:e.limits.MaxCellsPerRow]
		}
		for _, cell := range row {
			if !e.collect(set, cell) {
				break
			}
		}
	}
	return set
}

// collect adds every valid token of s. It returns false once the set is full.
func (e *Extractor) collect(set *domain.RecipientSet, s string) bool {
	for _, tok := range tokenSplit.Split(s, -1) {
		if set.Full() {
			return false
		}
		if tok == "" {
			continue
		}
		if addr, ok := e.normalize(tok); ok {
			set.Add(addr)
		}
	}
	return !set.Full()
}

func (e *Extractor) normalize(tok string) (string, bool) {
	if e.validate.Var(tok, "required,email") != nil {
		return "", false
	}
	return strings.ToLower(tok), true
}

// CSVSource reads rows from a CSV or plain text upload. Ragged rows and
// stray quotes are tolerated.
type CSVSource struct {
	r *csv.Reader
}

// NewCSVSource wraps r in a lenient CSV reader.
func NewCSVSource(r io.Reader) *CSVSource {
	cr := csv.NewReader(bufio.NewReaderSize(r, 64*1024))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return &CSVSource{r: cr}
}

// Next returns the next row, or io.EOF.
func (s *CSVSource) Next() ([]string, error) {
	return s.r.Read()
}

// SliceSource serves rows from memory.
type SliceSource struct {
	rows [][]string
	pos  int
}

// NewSliceSource returns a RowSource over rows.
func NewSliceSource(rows [][]string) *SliceSource {
	return &SliceSource{rows: rows}
}

// Next returns the next row, or io.EOF.
func (s *SliceSource) Next() ([]string, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}
