// Package seed populates a running marketplace with demo listings and
// reviews through its public HTTP API.
package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bjamilk/campusmarket/internal/domain"
	"github.com/bjamilk/campusmarket/pkg/httpclient"
	"github.com/bjamilk/campusmarket/pkg/middleware"
)

// Doer sends HTTP requests. *httpclient.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// User is a demo identity sent through the identity headers.
type User struct {
	ID   string
	Name string
}

// Listing is a demo listing with the reviews other users leave on it.
type Listing struct {
	Kind        domain.Kind
	Title       string
	Description string
	Attributes  map[string]any
	Poster      User
	Reviews     []Review
}

type Review struct {
	By      User
	Rating  int
	Comment string
}

// Result counts what a run created.
type Result struct {
	Listings int
	Reviews  int
}

// Seeder posts demo data to baseURL.
type Seeder struct {
	client  Doer
	baseURL string
	logger  *slog.Logger
}

func New(client Doer, baseURL string, logger *slog.Logger) *Seeder {
	return &Seeder{client: client, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// Run creates every listing and its reviews. It stops at the first failure.
func (s *Seeder) Run(ctx context.Context, listings []Listing) (Result, error) {
	var res Result
	for _, l := range listings {
		var created struct {
			ID string `json:"id"`
		}
		body := map[string]any{"title": l.Title, "description": l.Description, "attributes": l.Attributes}
		if err := s.post(ctx, "/api/v1/listings/"+l.Kind.String(), l.Poster, body, &created); err != nil {
			return res, fmt.Errorf("create %s %q: %w", l.Kind, l.Title, err)
		}
		res.Listings++

		for _, r := range l.Reviews {
			path := fmt.Sprintf("/api/v1/listings/%s/%s/reviews", l.Kind, created.ID)
			body := map[string]any{"rating": r.Rating, "comment": r.Comment}
			if err := s.post(ctx, path, r.By, body, nil); err != nil {
				return res, fmt.Errorf("review %s %s: %w", l.Kind, created.ID, err)
			}
			res.Reviews++
		}
		s.logger.DebugContext(ctx, "seeded listing",
			slog.String("kind", l.Kind.String()),
			slog.String("listing_id", created.ID),
			slog.Int("reviews", len(l.Reviews)),
		)
	}
	return res, nil
}

func (s *Seeder) post(ctx context.Context, path string, as User, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderUserID, as.ID)
	req.Header.Set(middleware.HeaderUserName, as.Name)

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return httpclient.ParseResponseError(resp, "campusmarket")
	}
	if out == nil {
		return nil
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return json.Unmarshal(env.Data, out)
}

// Demo returns a small catalogue covering a spread of listing kinds.
func Demo() []Listing {
	ada := User{ID: "seed-ada", Name: "Ada"}
	tunde := User{ID: "seed-tunde", Name: "Tunde"}
	chi := User{ID: "seed-chi", Name: "Chioma"}

	return []Listing{
		{
			Kind: domain.KindTextbook, Title: "Calculus: Early Transcendentals, 8th ed",
			Description: "Light highlighting in chapters 1-4.",
			Attributes:  map[string]any{"course": "MTH101", "condition": "good", "price": 6500},
			Poster:      ada,
			Reviews: []Review{
				{By: tunde, Rating: 5, Comment: "Exactly as described."},
				{By: chi, Rating: 4, Comment: "Quick handover at the library."},
			},
		},
		{
			Kind: domain.KindPastQuestion, Title: "CSC201 past questions 2016-2023",
			Attributes: map[string]any{"course": "CSC201", "years": "2016-2023"},
			Poster:     tunde,
			Reviews:    []Review{{By: ada, Rating: 5, Comment: "Saved my exam prep."}},
		},
		{
			Kind: domain.KindTutor, Title: "Physics tutoring, evenings",
			Description: "PHY101 and PHY102. Group sessions available.",
			Attributes:  map[string]any{"subjects": []string{"PHY101", "PHY102"}, "rate_per_hour": 3000},
			Poster:      chi,
			Reviews:     []Review{{By: ada, Rating: 3, Comment: "Helpful but often late."}},
		},
		{
			Kind: domain.KindRideShare, Title: "Campus to Ikeja, Friday 5pm",
			Attributes: map[string]any{"seats": 3, "fare": 1500},
			Poster:     ada,
		},
		{
			Kind: domain.KindSublet, Title: "Self-contained room near South Gate",
			Description: "Available for the second semester.",
			Attributes:  map[string]any{"months": 5, "rent_per_month": 45000},
			Poster:      tunde,
		},
	}
}
