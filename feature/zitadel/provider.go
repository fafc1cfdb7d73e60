package zitadel

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"identity-sync/core/reconcile"
	"identity-sync/core/utils"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/errgroup"
)

// Name identifies the provider in reports.
const Name = "zitadel"

// Provider implements reconcile.Provider against the Zitadel management API.
// The external id is kept in the profile nickname; preferred username and
// localpart are user metadata.
type Provider struct {
	cfg     Config
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

var _ reconcile.Provider = (*Provider)(nil)

// NewProvider creates a provider client.
func NewProvider(cfg Config, logger *zap.Logger) (*Provider, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("zitadel: invalid url %q", cfg.URL)
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("zitadel: project_id is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &http.Client{Timeout: timeout}
	if cfg.Token == "" && cfg.ClientID != "" {
		creds := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.tokenURL(),
			Scopes:       cfg.scopes(),
		}
		client = creds.Client(context.WithValue(context.Background(), oauth2.HTTPClient, client))
		client.Timeout = timeout
	}

	return &Provider{
		cfg:     cfg,
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		client:  client,
		logger:  logger.With(zap.String("provider", Name)),
	}, nil
}

func userPath(id string, parts ...string) string {
	return "/management/v1/users/" + url.PathEscape(id) + strings.Join(parts, "")
}

// ListUsers reads every human user with its grant and metadata.
func (p *Provider) ListUsers(ctx context.Context) ([]reconcile.ProviderUser, error) {
	users, err := p.searchUsers(ctx)
	if err != nil {
		return nil, err
	}
	granted, err := p.searchGrants(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]reconcile.ProviderUser, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, u := range users {
		out[i] = toProviderUser(u)
		out[i].Granted = granted[u.ID]
		if out[i].ExternalID == "" {
			continue
		}
		g.Go(func() error {
			meta, err := p.metadata(gctx, u.ID)
			if err != nil {
				return err
			}
			out[i].PreferredUsername = meta[string(reconcile.FieldPreferredUsername)]
			out[i].Localpart = meta[string(reconcile.FieldLocalpart)]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.logger.Info("Fetched provider users", zap.Int("count", len(out)), zap.Int("granted", len(granted)))
	return out, nil
}

func (p *Provider) searchUsers(ctx context.Context) ([]user, error) {
	var users []user
	for offset := 0; ; {
		req := searchRequest{
			Query:   listQuery{Offset: strconv.Itoa(offset), Limit: p.cfg.PageSize, Asc: true},
			Queries: []map[string]any{{"typeQuery": map[string]any{"type": typeHuman}}},
		}
		var resp userSearchResponse
		if err := p.call(ctx, http.MethodPost, "/management/v1/users/_search", req, &resp); err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}
		users = append(users, resp.Result...)
		offset += len(resp.Result)
		if len(resp.Result) == 0 || offset >= utils.ToInt(resp.Details.TotalResult) {
			return users, nil
		}
	}
}

func (p *Provider) searchGrants(ctx context.Context) (map[string]bool, error) {
	granted := make(map[string]bool)
	for offset := 0; ; {
		req := searchRequest{
			Query:   listQuery{Offset: strconv.Itoa(offset), Limit: p.cfg.PageSize, Asc: true},
			Queries: []map[string]any{{"projectIdQuery": map[string]any{"projectId": p.cfg.ProjectID}}},
		}
		var resp grantSearchResponse
		if err := p.call(ctx, http.MethodPost, "/management/v1/users/grants/_search", req, &resp); err != nil {
			return nil, fmt.Errorf("failed to list grants: %w", err)
		}
		for _, g := range resp.Result {
			granted[g.UserID] = true
		}
		offset += len(resp.Result)
		if len(resp.Result) == 0 || offset >= utils.ToInt(resp.Details.TotalResult) {
			return granted, nil
		}
	}
}

func (p *Provider) metadata(ctx context.Context, id string) (map[string]string, error) {
	var resp metadataSearchResponse
	if err := p.call(ctx, http.MethodPost, userPath(id, "/metadata/_search"), struct{}{}, &resp); err != nil {
		return nil, fmt.Errorf("failed to read metadata of %s: %w", id, err)
	}
	meta := make(map[string]string, len(resp.Result))
	for _, m := range resp.Result {
		value, err := base64.StdEncoding.DecodeString(m.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid metadata %s of %s: %w", m.Key, id, err)
		}
		meta[m.Key] = string(value)
	}
	return meta, nil
}

func toProviderUser(u user) reconcile.ProviderUser {
	pu := reconcile.ProviderUser{
		ProviderID: u.ID,
		LoginName:  u.PreferredLoginName,
		Enabled:    u.State != stateInactive,
	}
	if pu.LoginName == "" {
		pu.LoginName = u.UserName
	}
	if u.Human != nil {
		pu.ExternalID = u.Human.Profile.NickName
		pu.Email = u.Human.Email.Email
		pu.Phone = u.Human.Phone.Phone
		pu.FirstName = u.Human.Profile.FirstName
		pu.LastName = u.Human.Profile.LastName
		pu.DisplayName = u.Human.Profile.DisplayName
	}
	return pu
}

func toProfile(u reconcile.CanonicalUser) profile {
	return profile{
		FirstName:   u.FirstName.String(),
		LastName:    u.LastName.String(),
		NickName:    u.Key(),
		DisplayName: u.DisplayName.String(),
	}
}

// CreateUser imports the user as a human account.
func (p *Provider) CreateUser(ctx context.Context, u reconcile.CanonicalUser, opts reconcile.UserOptions) (string, error) {
	req := importHumanRequest{
		UserName: u.LoginName(),
		Profile:  toProfile(u),
		Email:    email{Email: u.Email.String(), IsEmailVerified: !opts.VerifyContacts},
	}
	if !u.Phone.IsZero() {
		req.Phone = &phone{Phone: u.Phone.String(), IsPhoneVerified: !opts.VerifyContacts}
	}

	var resp importHumanResponse
	if err := p.call(ctx, http.MethodPost, "/management/v1/users/human/_import", req, &resp); err != nil {
		return "", err
	}
	if resp.UserID == "" {
		return "", fmt.Errorf("import of %s returned no user id", u.Key())
	}
	return resp.UserID, nil
}

// UpdateUser writes the profile, email and phone as far as fields names them.
func (p *Provider) UpdateUser(ctx context.Context, id string, u reconcile.CanonicalUser, fields []reconcile.Field, opts reconcile.UserOptions) error {
	var profileChanged, emailChanged, phoneChanged bool
	for _, f := range fields {
		switch f {
		case reconcile.FieldFirstName, reconcile.FieldLastName, reconcile.FieldDisplayName:
			profileChanged = true
		case reconcile.FieldEmail:
			emailChanged = true
		case reconcile.FieldPhone:
			phoneChanged = true
		}
	}

	if profileChanged {
		if err := p.call(ctx, http.MethodPut, userPath(id, "/profile"), toProfile(u), nil); err != nil {
			return err
		}
	}
	if emailChanged {
		req := email{Email: u.Email.String(), IsEmailVerified: !opts.VerifyContacts}
		if err := p.call(ctx, http.MethodPut, userPath(id, "/email"), req, nil); err != nil {
			return err
		}
	}
	if phoneChanged {
		if u.Phone.IsZero() {
			return p.call(ctx, http.MethodDelete, userPath(id, "/phone"), nil, nil)
		}
		req := phone{Phone: u.Phone.String(), IsPhoneVerified: !opts.VerifyContacts}
		if err := p.call(ctx, http.MethodPut, userPath(id, "/phone"), req, nil); err != nil {
			return err
		}
	}
	return nil
}

// DisableUser deactivates the account. An already inactive account is not an error.
func (p *Provider) DisableUser(ctx context.Context, id string) error {
	err := p.call(ctx, http.MethodPost, userPath(id, "/_deactivate"), struct{}{}, nil)
	if IsAlreadyDone(err) {
		return nil
	}
	return err
}

// EnableUser reactivates the account. An already active account is not an error.
func (p *Provider) EnableUser(ctx context.Context, id string) error {
	err := p.call(ctx, http.MethodPost, userPath(id, "/_reactivate"), struct{}{}, nil)
	if IsAlreadyDone(err) {
		return nil
	}
	return err
}

// SetMetadata stores value under key.
func (p *Provider) SetMetadata(ctx context.Context, id, key, value string) error {
	req := metadataRequest{Value: base64.StdEncoding.EncodeToString([]byte(value))}
	return p.call(ctx, http.MethodPost, userPath(id, "/metadata/", url.PathEscape(key)), req, nil)
}

// AddGrant grants the configured project role. An existing grant is not an error.
func (p *Provider) AddGrant(ctx context.Context, id string) error {
	req := grantRequest{ProjectID: p.cfg.ProjectID, RoleKeys: []string{p.cfg.Role}}
	err := p.call(ctx, http.MethodPost, userPath(id, "/grants"), req, nil)
	if isStatus(err, http.StatusConflict) {
		return nil
	}
	return err
}

// LinkSSO links the account to the configured identity provider.
func (p *Provider) LinkSSO(ctx context.Context, id string, u reconcile.CanonicalUser) error {
	if p.cfg.IdpID == "" {
		return fmt.Errorf("zitadel: %w: idp_id is not configured", reconcile.ErrRejected)
	}
	req := idpLinkRequest{IdpLink: idpLink{IdpID: p.cfg.IdpID, UserID: u.Key(), UserName: u.LoginName()}}
	return p.call(ctx, http.MethodPost, "/v2/users/"+url.PathEscape(id)+"/links", req, nil)
}

func isStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
