package weaviate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"diaryrag/internal/domain"
	"diaryrag/internal/logging"
	"diaryrag/internal/retry"
	"diaryrag/internal/vectorstore"
)

// Storage is a minimal REST/GraphQL client to Weaviate.
// Classes are created without a vectorizer; vectors are always supplied by the caller.
type Storage struct {
	url     string
	apiKey  string
	client  *http.Client
	startup retry.Policy
	log     *zap.Logger
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	// Startup bounds the readiness probe in Init.
	Startup retry.Policy
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func NewStorage(cfg Config, log *zap.Logger) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:     strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		startup: cfg.Startup,
		log:     logging.OrNop(log),
	}
}

// Init waits for the instance to report ready, then creates missing classes.
func (s *Storage) Init(ctx context.Context) error {
	err := retry.Do(ctx, s.startup, func(ctx context.Context, attempt int) error {
		err := s.do(ctx, http.MethodGet, "/v1/.well-known/ready", nil, nil)
		if err != nil {
			s.log.Warn("weaviate not ready", zap.Int("attempt", attempt+1), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return domain.NewExternalServiceError("weaviate", "connect", err)
	}
	for _, class := range vectorstore.Schema {
		if err := s.ensureClass(ctx, class); err != nil {
			return domain.NewExternalServiceError("weaviate", "schema", err)
		}
	}
	s.log.Info("weaviate connected", zap.String("url", s.url))
	return nil
}

func (s *Storage) ensureClass(ctx context.Context, class vectorstore.Class) error {
	err := s.do(ctx, http.MethodGet, "/v1/schema/"+class.Name, nil, nil)
	if err == nil {
		return nil
	}
	var se *statusError
	if !errors.As(err, &se) || se.code != http.StatusNotFound {
		return err
	}
	props := make([]map[string]any, 0, len(class.Properties))
	for _, p := range class.Properties {
		dt := "text"
		if p.Array {
			dt = "text[]"
		}
		props = append(props, map[string]any{"name": p.Name, "dataType": []string{dt}})
	}
	body := map[string]any{
		"class":      class.Name,
		"vectorizer": "none",
		"properties": props,
	}
	err = s.do(ctx, http.MethodPost, "/v1/schema", body, nil)
	if errors.As(err, &se) && se.code == http.StatusUnprocessableEntity && strings.Contains(se.body, "already exists") {
		return nil
	}
	return err
}

// Upsert writes objects through the batch endpoint. IDs that are not UUIDs
// are mapped to stable name-based UUIDs.
func (s *Storage) Upsert(ctx context.Context, collection string, objects []domain.Object) error {
	if _, ok := vectorstore.LookupClass(collection); !ok {
		return fmt.Errorf("unknown collection %q", collection)
	}
	if len(objects) == 0 {
		return nil
	}
	items := make([]map[string]any, len(objects))
	for i, o := range objects {
		items[i] = map[string]any{
			"class":      collection,
			"id":         objectID(o.ID),
			"properties": o.Properties,
			"vector":     o.Vector,
		}
	}
	var resp []struct {
		ID     string `json:"id"`
		Result struct {
			Errors *struct {
				Error []struct {
					Message string `json:"message"`
				} `json:"error"`
			} `json:"errors"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, "/v1/batch/objects", map[string]any{"objects": items}, &resp); err != nil {
		return domain.NewExternalServiceError("weaviate", "batch", err)
	}
	var errs []error
	for _, r := range resp {
		if r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			errs = append(errs, fmt.Errorf("object %s: %s", r.ID, e.Message))
		}
	}
	if len(errs) > 0 {
		return domain.NewExternalServiceError("weaviate", "batch", errors.Join(errs...))
	}
	return nil
}

// Hybrid runs a GraphQL hybrid query and returns the requested fields per hit.
func (s *Storage) Hybrid(ctx context.Context, collection string, q vectorstore.HybridQuery) ([]domain.SearchResult, error) {
	gql, err := buildHybridQuery(collection, q)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data struct {
			Get map[string][]map[string]any `json:"Get"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := s.do(ctx, http.MethodPost, "/v1/graphql", map[string]any{"query": gql}, &resp); err != nil {
		return nil, domain.NewExternalServiceError("weaviate", "hybrid", err)
	}
	if len(resp.Errors) > 0 {
		return nil, domain.NewExternalServiceError("weaviate", "hybrid", errors.New(resp.Errors[0].Message))
	}
	hits := resp.Data.Get[collection]
	results := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, domain.SearchResult{
			Properties: vectorstore.Project(h, q.Fields),
			Score:      additionalScore(h),
		})
	}
	return results, nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func buildHybridQuery(collection string, q vectorstore.HybridQuery) (string, error) {
	if !identifier.MatchString(collection) {
		return "", fmt.Errorf("invalid collection name %q", collection)
	}
	if len(q.Fields) == 0 {
		return "", errors.New("hybrid query needs at least one field")
	}
	for _, f := range q.Fields {
		if !identifier.MatchString(f) {
			return "", fmt.Errorf("invalid field name %q", f)
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}
	// JSON string literals are valid GraphQL string literals.
	text, err := json.Marshal(q.Text)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "{ Get { %s(hybrid: {query: %s, alpha: %s", collection, text, strconv.FormatFloat(q.Alpha, 'f', -1, 64))
	if len(q.Vector) > 0 {
		b.WriteString(", vector: [")
		for i, v := range q.Vector {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		b.WriteByte(']')
	}
	fmt.Fprintf(&b, "}, limit: %d) { %s _additional { score } } } }", limit, strings.Join(q.Fields, " "))
	return b.String(), nil
}

func additionalScore(hit map[string]any) float64 {
	add, ok := hit["_additional"].(map[string]any)
	if !ok {
		return 0
	}
	switch v := add["score"].(type) {
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case float64:
		return v
	}
	return 0
}

func objectID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

type statusError struct {
	method string
	path   string
	code   int
	status string
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("weaviate %s %s failed: %s", e.method, e.path, e.status)
}

func (s *Storage) do(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{method: method, path: path, code: resp.StatusCode, status: resp.Status, body: string(msg)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
