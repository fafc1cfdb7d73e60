package ldap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"

	"identity-sync/core/ldapfilter"
	"identity-sync/core/reconcile"

	goldap "github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// Name is the source name used in reports.
const Name = "ldap"

// conn is the part of *goldap.Conn the source uses.
type conn interface {
	Bind(username, password string) error
	Search(req *goldap.SearchRequest) (*goldap.SearchResult, error)
	Close() error
}

// Source reads users from a directory with a paged subtree search.
type Source struct {
	cfg     Config
	mapping reconcile.AttributeMapping
	filter  string
	logger  *zap.Logger
	dial    func(ctx context.Context) (conn, error)
}

// NewSource creates a directory source. With scoped set the configured scope
// filter is evaluated by the directory as part of the search.
func NewSource(cfg Config, scoped bool, logger *zap.Logger) (*Source, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("ldap: url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mapping := cfg.Mapping()
	parts := []ldapfilter.Filter{
		ldapfilter.Raw(cfg.UserFilter),
		ldapfilter.Present(mapping.ExternalID.Name),
	}
	if scoped {
		parts = append(parts, ldapfilter.Raw(cfg.ScopeFilter))
	}
	filter := ldapfilter.And(parts...).String()
	if err := ldapfilter.Validate(filter); err != nil {
		return nil, fmt.Errorf("ldap: %w", err)
	}

	s := &Source{
		cfg:     cfg,
		mapping: mapping,
		filter:  filter,
		logger:  logger.With(zap.String("source", Name)),
	}
	s.dial = s.connect
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

// Filter returns the search filter sent to the directory.
func (s *Source) Filter() string {
	return s.filter
}

func (s *Source) connect(ctx context.Context) (conn, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: s.cfg.InsecureSkipVerify}
	if u, err := url.Parse(s.cfg.URL); err == nil {
		tlsConfig.ServerName = u.Hostname()
	}

	c, err := goldap.DialURL(s.cfg.URL,
		goldap.DialWithDialer(&net.Dialer{Timeout: s.cfg.Timeout}),
		goldap.DialWithTLSConfig(tlsConfig),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", s.cfg.URL, err)
	}
	if s.cfg.Timeout > 0 {
		c.SetTimeout(s.cfg.Timeout)
	}

	if s.cfg.StartTLS {
		if err := c.StartTLS(tlsConfig); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to start tls: %w", err)
		}
	}
	return c, nil
}

// FetchAll binds and returns every user entry under the base DN.
func (s *Source) FetchAll(ctx context.Context) ([]reconcile.RawRecord, error) {
	c, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	// Unblock a pending request when the run is cancelled.
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	if s.cfg.BindDN != "" {
		if err := c.Bind(s.cfg.BindDN, s.cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("failed to bind as %s: %w", s.cfg.BindDN, err)
		}
	}

	pageSize := s.cfg.PageSize
	if pageSize == 0 {
		pageSize = 500
	}
	pageControl := goldap.NewControlPaging(pageSize)
	req := goldap.NewSearchRequest(
		s.cfg.BaseDN,
		goldap.ScopeWholeSubtree,
		goldap.NeverDerefAliases,
		0, 0, false,
		s.filter,
		s.mapping.Names(),
		[]goldap.Control{pageControl},
	)

	var records []reconcile.RawRecord
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := c.Search(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("ldap search failed: %w", err)
		}

		for _, entry := range res.Entries {
			records = append(records, toRecord(entry))
		}
		s.logger.Debug("Fetched directory page", zap.Int("page", page), zap.Int("entries", len(res.Entries)))

		paging, ok := goldap.FindControl(res.Controls, goldap.ControlTypePaging).(*goldap.ControlPaging)
		if !ok || len(paging.Cookie) == 0 {
			break
		}
		pageControl.SetCookie(paging.Cookie)
	}

	s.logger.Info("Fetched directory users", zap.Int("count", len(records)))
	return records, nil
}

func toRecord(entry *goldap.Entry) reconcile.RawRecord {
	rec := reconcile.RawRecord{
		Source:     Name,
		Key:        entry.DN,
		Attributes: make(map[string][][]byte, len(entry.Attributes)),
	}
	for _, attr := range entry.Attributes {
		rec.Add(attr.Name, attr.ByteValues...)
	}
	return rec
}
