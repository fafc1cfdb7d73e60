package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"identity-sync/core/ldapfilter"
	"identity-sync/core/reconcile"
	"identity-sync/core/storage"

	"go.uber.org/zap"
)

// Name is the source name used in reports.
const Name = "csv"

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// Source reads users from a CSV file with a header row.
type Source struct {
	cfg     Config
	mapping reconcile.AttributeMapping
	scope   *ldapfilter.Matcher
	store   storage.Client
	bucket  string
	logger  *zap.Logger
}

// NewSource creates a flat-file source. store may be nil when the file is local.
func NewSource(cfg Config, store storage.Client, bucket string, logger *zap.Logger) (*Source, error) {
	if cfg.Path == "" && cfg.Object == "" {
		return nil, fmt.Errorf("csv: path or object is required")
	}
	if cfg.Object != "" && store == nil {
		return nil, fmt.Errorf("csv: object %q configured without object storage", cfg.Object)
	}
	if utf8.RuneCountInString(cfg.Delimiter) > 1 {
		return nil, fmt.Errorf("csv: delimiter %q must be a single character", cfg.Delimiter)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Source{
		cfg:     cfg,
		mapping: cfg.Mapping(),
		store:   store,
		bucket:  bucket,
		logger:  logger.With(zap.String("source", Name)),
	}
	if cfg.ScopeFilter != "" {
		m, err := ldapfilter.Compile(cfg.ScopeFilter)
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		s.scope = m
	}
	return s, nil
}

// Name returns the source name.
func (s *Source) Name() string {
	return Name
}

// Mapping returns the attribute mapping of the source.
func (s *Source) Mapping() reconcile.AttributeMapping {
	return s.mapping
}

// Scope returns the row filter, or nil when none is configured.
func (s *Source) Scope() reconcile.Scope {
	if s.scope == nil {
		return nil
	}
	return s.scope
}

// FetchAll reads the whole file.
func (s *Source) FetchAll(ctx context.Context) ([]reconcile.RawRecord, error) {
	data, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.parse(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	if err != nil {
		return nil, err
	}
	s.logger.Info("Fetched csv users", zap.Int("count", len(records)))
	return records, nil
}

func (s *Source) read(ctx context.Context) ([]byte, error) {
	if s.cfg.Object != "" {
		return storage.ReadObject(ctx, s.store, s.bucket, s.cfg.Object)
	}
	data, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.cfg.Path, err)
	}
	return data, nil
}

func (s *Source) parse(r io.Reader) ([]reconcile.RawRecord, error) {
	reader := csv.NewReader(r)
	if s.cfg.Delimiter != "" {
		reader.Comma, _ = utf8.DecodeRuneInString(s.cfg.Delimiter)
	}
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv file has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []reconcile.RawRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !errors.Is(err, csv.ErrFieldCount) {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		rec := reconcile.RawRecord{Source: Name, Key: fmt.Sprintf("line %d", line)}

		if err != nil {
			// Cells are kept so the row's external id stays quarantined.
			s.logger.Warn("Malformed csv row", zap.Int("line", line), zap.Error(err))
			rec.Err = err
		}

		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			for _, v := range s.split(cell) {
				rec.Add(header[i], []byte(v))
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// split returns the non-empty values of a cell.
func (s *Source) split(cell string) []string {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	if s.cfg.MultiValueSeparator == "" {
		return []string{cell}
	}
	var values []string
	for _, v := range strings.Split(cell, s.cfg.MultiValueSeparator) {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
