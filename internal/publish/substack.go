package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/yf-chau/news-summary/internal/logger"
	"github.com/yf-chau/news-summary/internal/retry"
)

// DefaultSubstackAPI is where the signed-in user's profile lives.
const DefaultSubstackAPI = "https://substack.com"

// SubstackOptions configures the Substack publisher.
type SubstackOptions struct {
	PublicationURL string // e.g. https://hknewsdigest.substack.com
	CookiesPath    string // JSON cookie file, either a browser export list or a name->value map
	Cookies        string // raw "name=value; ..." header, used when CookiesPath is empty
	APIBase        string // defaults to DefaultSubstackAPI
	Timeout        time.Duration
	Policy         *retry.Policy // defaults to SubstackPolicy
}

// SubstackPolicy is the draft retry budget: 3 attempts, waiting 1s then 2s.
func SubstackPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		Multiplier:  time.Second,
		MaxDelay:    time.Minute,
	}
}

// Substack creates a draft post and runs the prepublish check. It never publishes the draft.
type Substack struct {
	pubURL  string
	apiBase string
	cookie  string
	client  *http.Client
	policy  retry.Policy
}

// NewSubstack validates opts and loads the session cookies.
func NewSubstack(opts SubstackOptions) (*Substack, error) {
	if opts.PublicationURL == "" {
		return nil, fmt.Errorf("substack publication URL not configured")
	}
	cookie := strings.TrimSpace(opts.Cookies)
	if opts.CookiesPath != "" {
		var err error
		if cookie, err = LoadCookies(opts.CookiesPath); err != nil {
			return nil, err
		}
	}
	if cookie == "" {
		return nil, fmt.Errorf("substack cookies not configured")
	}
	if opts.APIBase == "" {
		opts.APIBase = DefaultSubstackAPI
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	policy := SubstackPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	return &Substack{
		pubURL:  strings.TrimRight(opts.PublicationURL, "/"),
		apiBase: strings.TrimRight(opts.APIBase, "/"),
		cookie:  cookie,
		client:  &http.Client{Timeout: opts.Timeout},
		policy:  policy,
	}, nil
}

// LoadCookies reads a cookie file and returns a Cookie header value. Both a list of
// {"name", "value"} objects and a flat name->value object are accepted.
func LoadCookies(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read cookies: %w", err)
	}

	var list []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	pairs := map[string]string{}
	if err := json.Unmarshal(data, &list); err == nil {
		for _, c := range list {
			pairs[c.Name] = c.Value
		}
	} else if err := json.Unmarshal(data, &pairs); err != nil {
		return "", fmt.Errorf("failed to parse cookies %s: %w", path, err)
	}

	cookies := make([]string, 0, len(pairs))
	for name, value := range pairs {
		if name == "" {
			continue
		}
		cookies = append(cookies, (&http.Cookie{Name: name, Value: value}).String())
	}
	if len(cookies) == 0 {
		return "", fmt.Errorf("no cookies in %s", path)
	}
	sort.Strings(cookies)
	return strings.Join(cookies, "; "), nil
}

// Name implements Publisher.
func (s *Substack) Name() string { return ProviderSubstack }

type byline struct {
	ID      int64 `json:"id"`
	IsGuest bool  `json:"is_guest"`
}

type draftRequest struct {
	Title                   string   `json:"draft_title"`
	Subtitle                string   `json:"draft_subtitle"`
	Body                    string   `json:"draft_body"`
	Bylines                 []byline `json:"draft_bylines"`
	Audience                string   `json:"audience"`
	SectionChosen           bool     `json:"section_chosen"`
	WriteCommentPermissions string   `json:"write_comment_permissions"`
}

// Publish implements Publisher. It returns the editor URL of the new draft.
func (s *Substack) Publish(ctx context.Context, title, markdown string) (string, error) {
	var profile struct {
		ID int64 `json:"id"`
	}
	if err := s.call(ctx, http.MethodGet, s.apiBase+"/api/v1/user/profile/self", nil, &profile); err != nil {
		return "", fmt.Errorf("%w: profile: %w", ErrDraftFailed, err)
	}
	if profile.ID == 0 {
		return "", fmt.Errorf("%w: could not get user id from profile", ErrDraftFailed)
	}

	body, err := json.Marshal(ToProseMirror(markdown))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDraftFailed, err)
	}
	req := draftRequest{
		Title:                   title,
		Subtitle:                Subtitle(markdown),
		Body:                    string(body),
		Bylines:                 []byline{{ID: profile.ID}},
		Audience:                "everyone",
		SectionChosen:           true,
		WriteCommentPermissions: "everyone",
	}

	var draft struct {
		ID int64 `json:"id"`
	}
	if err := s.call(ctx, http.MethodPost, s.pubURL+"/api/v1/drafts", req, &draft); err != nil {
		return "", fmt.Errorf("%w: create: %w", ErrDraftFailed, err)
	}
	if draft.ID == 0 {
		return "", fmt.Errorf("%w: no draft id returned", ErrDraftFailed)
	}

	if err := s.call(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/drafts/%d/prepublish", s.pubURL, draft.ID), nil, nil); err != nil {
		return "", fmt.Errorf("%w: prepublish: %w", ErrDraftFailed, err)
	}

	location := fmt.Sprintf("%s/publish/post/%d", s.pubURL, draft.ID)
	logger.Info("Substack draft created", "draft_id", draft.ID, "url", location)
	return location, nil
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("substack returned status %d: %s", e.Code, e.Body)
}

// call sends one JSON request under the retry policy. Client errors (4xx) are not retried.
func (s *Substack) call(ctx context.Context, method, url string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	return s.policy.Do(ctx, func(int) error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return retry.Stop(err)
		}
		req.Header.Set("Cookie", s.cookie)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 {
			serr := &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
			if resp.StatusCode < 500 {
				return retry.Stop(serr)
			}
			return serr
		}
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return retry.Stop(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		logger.Warn("Substack request failed, retrying",
			"url", url,
			"attempt", attempt,
			"wait", wait.String(),
			"error", err.Error())
	})
}

// StatusCode extracts the HTTP status of a failed Substack call, or 0.
func StatusCode(err error) int {
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.Code
	}
	return 0
}
