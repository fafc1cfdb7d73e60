package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"identity-sync/core/ldapfilter"
	"identity-sync/core/reconcile"
	"identity-sync/core/utils"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// Name is the source name used in reports.
	Name = "endpoint"

	// ParticipantHeader carries the id token issued next to the access token.
	ParticipantHeader = "x-participant-token"

	maxBodySize = 64 << 20
)

// Source fetches users from a JSON endpoint.
type Source struct {
	cfg     Config
	mapping reconcile.AttributeMapping
	scope   *ldapfilter.Matcher
	client  *http.Client
	creds   *clientcredentials.Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewSource creates an endpoint source.
func NewSource(cfg Config, logger *zap.Logger) (*Source, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("endpoint: invalid url %q", cfg.URL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Source{
		cfg:     cfg,
		mapping: cfg.Mapping(),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("source", Name)),
		now:     time.Now,
	}
	if cfg.TokenURL != "" {
		s.creds = &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
	}
	if cfg.ScopeFilter != "" {
		if s.scope, err = ldapfilter.Compile(cfg.ScopeFilter); err != nil {
			return nil, fmt.Errorf("endpoint: %w", err)
		}
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

// Scope returns the entry filter, or nil when none is configured.
func (s *Source) Scope() reconcile.Scope {
	if s.scope == nil {
		return nil
	}
	return s.scope
}

// FetchAll requests the full user list.
func (s *Source) FetchAll(ctx context.Context) ([]reconcile.RawRecord, error) {
	req, err := s.newRequest(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("endpoint request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read endpoint response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("endpoint returned %s", resp.Status)
	}

	records, err := s.decode(body)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Fetched endpoint users", zap.Int("count", len(records)))
	return records, nil
}

func (s *Source) newRequest(ctx context.Context) (*http.Request, error) {
	u, _ := url.Parse(s.cfg.URL)
	if s.cfg.DateParam != "" {
		q := u.Query()
		q.Set(s.cfg.DateParam, s.now().UTC().Format("20060102"))
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	if s.creds != nil {
		tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, s.client)
		token, err := s.creds.Token(tokenCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain endpoint token: %w", err)
		}
		token.SetAuthHeader(req)
		if id, ok := token.Extra("id_token").(string); ok && id != "" {
			req.Header.Set(ParticipantHeader, id)
		}
	}
	return req, nil
}

// decode accepts an array of objects or of bare identifiers.
func (s *Source) decode(body []byte) ([]reconcile.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode endpoint response: %w", err)
	}

	var items []any
	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		if e, ok := v["error"]; ok {
			return nil, fmt.Errorf("endpoint reported an error: %s", utils.ToString(e))
		}
		return nil, fmt.Errorf("endpoint returned an object, expected a list")
	default:
		return nil, fmt.Errorf("endpoint returned %T, expected a list", payload)
	}

	records := make([]reconcile.RawRecord, 0, len(items))
	for i, item := range items {
		rec := reconcile.RawRecord{Source: Name, Key: fmt.Sprintf("#%d", i)}
		switch v := item.(type) {
		case string:
			if v != "" {
				rec.Add(s.mapping.ExternalID.Name, []byte(v))
			}
		case map[string]any:
			for name, raw := range v {
				for _, value := range utils.ToStrings(raw) {
					if value != "" {
						rec.Add(name, []byte(value))
					}
				}
			}
		default:
			s.logger.Warn("Malformed endpoint entry", zap.Int("index", i))
			rec.Err = fmt.Errorf("unexpected entry of type %T", item)
		}
		records = append(records, rec)
	}
	return records, nil
}
