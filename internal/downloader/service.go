package downloader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/jwheet/MovieHound/internal/crypto"
	"github.com/jwheet/MovieHound/internal/metrics"
	"github.com/jwheet/MovieHound/internal/rename"
	"github.com/jwheet/MovieHound/internal/store"
)

var (
	ErrClientNotFound = errors.New("download client not found")
	ErrInvalidClient  = errors.New("invalid download client")
	ErrClientDisabled = errors.New("download client is disabled")
)

// DefaultDispatchDelay spaces consecutive adds to one daemon.
const DefaultDispatchDelay = 100 * time.Millisecond

// DownloadClient is a persisted daemon connection. Credentials are only
// populated on values returned by Get. Enabled is always set on stored
// records; on input nil means keep the stored value, or enabled for a new
// record.
type DownloadClient struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      ClientType `json:"type"`
	Host      string     `json:"host"`
	Port      int        `json:"port"`
	Username  string     `json:"username,omitempty"`
	Password  string     `json:"password,omitempty"`
	APIKey    string     `json:"apiKey,omitempty"`
	UseSSL    bool       `json:"ssl"`
	URLBase   string     `json:"urlBase,omitempty"`
	Category  string     `json:"category,omitempty"`
	Enabled   *bool      `json:"enabled"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Config converts the record into a factory configuration.
func (d *DownloadClient) Config() *ClientConfig {
	return &ClientConfig{
		Type:     d.Type,
		Host:     d.Host,
		Port:     d.Port,
		Username: d.Username,
		Password: d.Password,
		APIKey:   d.APIKey,
		UseSSL:   d.UseSSL,
		URLBase:  d.URLBase,
		Category: d.Category,
	}
}

// IsEnabled reports whether dispatch may use the client.
func (d *DownloadClient) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

func (d *DownloadClient) redacted() *DownloadClient {
	c := *d
	c.Password = ""
	c.APIKey = ""
	return &c
}

// DispatchError records one torrent the daemon refused.
type DispatchError struct {
	Title string `json:"title"`
	Error string `json:"error"`
}

// DispatchResult summarizes one batch sent to a daemon.
type DispatchResult struct {
	Added  int             `json:"added"`
	Failed int             `json:"failed"`
	Errors []DispatchError `json:"errors"`
}

// Renamer starts detached rename workers.
type Renamer interface {
	Spawn(ctx context.Context, task rename.Task) <-chan rename.Outcome
}

// Service manages persisted client configurations and dispatches results
// lists to them.
type Service struct {
	db      *sql.DB
	secrets *crypto.SecretStore
	lists   *store.Store
	renamer Renamer
	metrics *metrics.Metrics
	logger  zerolog.Logger
	clock   clockwork.Clock

	// background outlives any single request; rename workers run under it.
	background    context.Context
	dispatchDelay time.Duration
	newClient     func(*ClientConfig) (Client, error)
}

type ServiceOption func(*Service)

func WithRenamer(r Renamer) ServiceOption { return func(s *Service) { s.renamer = r } }

func WithServiceMetrics(m *metrics.Metrics) ServiceOption { return func(s *Service) { s.metrics = m } }

func WithClock(c clockwork.Clock) ServiceOption { return func(s *Service) { s.clock = c } }

func WithDispatchDelay(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d >= 0 {
			s.dispatchDelay = d
		}
	}
}

// WithBackground sets the context rename workers run under. Cancelling it
// abandons every outstanding worker.
func WithBackground(ctx context.Context) ServiceOption {
	return func(s *Service) { s.background = ctx }
}

func NewService(db *sql.DB, secrets *crypto.SecretStore, lists *store.Store, logger zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		db:            db,
		secrets:       secrets,
		lists:         lists,
		logger:        logger.With().Str("component", "downloader").Logger(),
		clock:         clockwork.NewRealClock(),
		background:    context.Background(),
		dispatchDelay: DefaultDispatchDelay,
		newClient:     NewClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListTypes returns the static registry.
func (s *Service) ListTypes() []ClientInfo {
	return SupportedClientTypes()
}

// Test connects with a transient configuration. Configuration errors are
// reported in the result rather than returned.
func (s *Service) Test(ctx context.Context, cfg *ClientConfig) TestResult {
	client, err := s.newClient(cfg)
	if err != nil {
		return TestResult{Error: err.Error()}
	}
	res := client.Test(ctx)
	s.logger.Info().Str("type", string(cfg.Type)).Str("host", cfg.Host).Bool("success", res.Success).Msg("Tested download client")
	return res
}

// Save creates or replaces a configuration. A new record gets a generated
// id. Saving without a password or API key keeps the stored one.
func (s *Service) Save(ctx context.Context, input *DownloadClient) (*DownloadClient, error) {
	if strings.TrimSpace(input.Host) == "" || input.Port <= 0 {
		return nil, fmt.Errorf("%w: host and port are required", ErrInvalidClient)
	}
	info, ok := Lookup(input.Type)
	if !ok {
		return nil, fmt.Errorf("%w %q; supported types: %s", ErrUnknownClientType, input.Type, supportedList())
	}

	c := *input
	if c.Name == "" {
		c.Name = info.Name
	}
	now := s.clock.Now().UTC()
	c.UpdatedAt = now

	var existing *DownloadClient
	if c.ID != "" {
		prev, err := s.get(ctx, c.ID)
		if err != nil && !errors.Is(err, ErrClientNotFound) {
			return nil, err
		}
		existing = prev
	} else {
		c.ID = "client-" + uuid.NewString()
	}
	if c.Enabled == nil {
		enabled := existing == nil || existing.IsEnabled()
		c.Enabled = &enabled
	}

	password, err := s.secrets.Seal(c.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to seal password: %w", err)
	}
	apiKey, err := s.secrets.Seal(c.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to seal API key: %w", err)
	}

	c.CreatedAt = now
	if existing != nil {
		c.CreatedAt = existing.CreatedAt
		if password == "" {
			password = existing.Password
		}
		if apiKey == "" {
			apiKey = existing.APIKey
		}
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO download_clients
		(id, name, type, host, port, username, password, api_key, use_ssl, url_base, category, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, type = excluded.type, host = excluded.host, port = excluded.port,
			username = excluded.username, password = excluded.password, api_key = excluded.api_key,
			use_ssl = excluded.use_ssl, url_base = excluded.url_base, category = excluded.category,
			enabled = excluded.enabled, updated_at = excluded.updated_at`,
		c.ID, c.Name, string(c.Type), c.Host, c.Port, c.Username, password, apiKey,
		boolToInt(c.UseSSL), c.URLBase, c.Category, boolToInt(*c.Enabled),
		c.CreatedAt.Format(time.RFC3339Nano), c.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to save download client: %w", err)
	}

	s.logger.Info().Str("id", c.ID).Str("name", c.Name).Str("type", string(c.Type)).Msg("Saved download client")
	return c.redacted(), nil
}

// List returns every configuration without credentials.
func (s *Service) List(ctx context.Context) ([]*DownloadClient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM download_clients ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list download clients: %w", err)
	}
	defer rows.Close()

	clients := []*DownloadClient{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c.redacted())
	}
	return clients, rows.Err()
}

// Get returns a configuration with its credentials unsealed. It is meant
// for building clients, never for API responses.
func (s *Service) Get(ctx context.Context, id string) (*DownloadClient, error) {
	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Password, err = s.secrets.Unseal(c.Password); err != nil {
		return nil, fmt.Errorf("failed to unseal password for %s: %w", id, err)
	}
	if c.APIKey, err = s.secrets.Unseal(c.APIKey); err != nil {
		return nil, fmt.Errorf("failed to unseal API key for %s: %w", id, err)
	}
	return c, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM download_clients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete download client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrClientNotFound
	}
	s.logger.Info().Str("id", id).Msg("Deleted download client")
	return nil
}

// Dispatch adds every row of a results list to the stored client. Each
// accepted torrent gets a detached rename worker; the daemon's refusals are
// collected rather than returned.
func (s *Service) Dispatch(ctx context.Context, clientID, resultsFile, category string) (*DispatchResult, error) {
	record, err := s.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !record.IsEnabled() {
		return nil, ErrClientDisabled
	}
	client, err := s.newClient(record.Config())
	if err != nil {
		return nil, err
	}
	rows, err := s.lists.ReadResults(resultsFile)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With().Str("client", record.Name).Str("file", resultsFile).Logger()
	canRename := SupportsRename(record.Type)
	result := &DispatchResult{Errors: []DispatchError{}}

	for i, row := range rows {
		if i > 0 && s.dispatchDelay > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-s.clock.After(s.dispatchDelay):
			}
		}

		name := store.FormatMovieName(row.Title, row.Year, row.Quality)
		res := client.AddTorrent(ctx, row.Locator, AddOptions{Name: name, Category: category})
		s.metrics.Dispatched(string(record.Type), res.Success)

		if !res.Success {
			result.Failed++
			msg := res.Error
			if msg == "" {
				msg = "Unknown error"
			}
			result.Errors = append(result.Errors, DispatchError{Title: row.Title, Error: msg})
			logger.Warn().Str("title", row.Title).Str("error", msg).Msg("Daemon refused torrent")
			continue
		}

		result.Added++
		if s.renamer != nil {
			s.renamer.Spawn(s.background, rename.Task{
				Client:         client,
				SupportsRename: canRename,
				Locator:        row.Locator,
				Name:           name,
			})
		}
	}

	logger.Info().Int("added", result.Added).Int("failed", result.Failed).Msg("Dispatched results list")
	return result, nil
}

func (s *Service) get(ctx context.Context, id string) (*DownloadClient, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM download_clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load download client: %w", err)
	}
	return c, nil
}

const clientColumns = `id, name, type, host, port, username, password, api_key, use_ssl, url_base,
	category, enabled, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (*DownloadClient, error) {
	var c DownloadClient
	var clientType, created, updated string
	var useSSL, enabled int
	if err := row.Scan(&c.ID, &c.Name, &clientType, &c.Host, &c.Port, &c.Username, &c.Password, &c.APIKey,
		&useSSL, &c.URLBase, &c.Category, &enabled, &created, &updated); err != nil {
		return nil, err
	}
	c.Type = ClientType(clientType)
	c.UseSSL = useSSL != 0
	on := enabled != 0
	c.Enabled = &on
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
