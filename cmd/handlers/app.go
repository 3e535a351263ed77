package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/yf-chau/news-summary/internal/config"
	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/feeds"
	"github.com/yf-chau/news-summary/internal/llm"
	"github.com/yf-chau/news-summary/internal/logger"
	"github.com/yf-chau/news-summary/internal/publish"
	"github.com/yf-chau/news-summary/internal/store"
)

// Seams replaced in tests.
var (
	newClient   = openClient
	newIngester = func(cfg *config.Config) ingester { return feeds.NewFeedManager(cfg.FeedOptions()) }
	now         = time.Now
)

type ingester interface {
	Ingest(ctx context.Context, sources []feeds.Source) ([]core.Article, error)
}

// validatedConfig returns the loaded configuration after checking what the command needs.
func validatedConfig(needs config.Needs) (*config.Config, error) {
	cfg := config.Get()
	if err := cfg.Validate(needs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openClient(ctx context.Context, cfg *config.Config) (*llm.Client, error) {
	backend, err := llm.NewBackend(ctx, cfg.AI.Gemini.Backend, cfg.AI.Gemini.APIKey, cfg.LLMSettings())
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	logger.Debug("LLM backend ready", "backend", backend.Name(), "model", cfg.AI.Gemini.Model)
	return llm.NewClient(backend, llm.WithPolicy(cfg.RetryPolicy())), nil
}

// openStore returns nil when the archive is disabled.
func openStore(cfg *config.Config) (*store.Store, error) {
	if !cfg.Store.Enabled {
		return nil, nil
	}
	st, err := store.NewStore(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open article archive: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		logger.Warn("Failed to close article archive", "error", err.Error())
	}
}

// collectArticles returns the articles inside the configured window, either fresh from the
// feeds (archiving them on the way) or from the archive alone.
func collectArticles(ctx context.Context, cfg *config.Config, st *store.Store, fromArchive bool) ([]core.Article, error) {
	cutoff := now().Add(-cfg.FeedWindow())

	if fromArchive {
		if st == nil {
			return nil, fmt.Errorf("--from-archive needs store.enabled")
		}
		articles, err := st.LoadSince(cutoff)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded articles from archive", "count", len(articles), "since", cutoff.Format(time.RFC3339))
		return articles, nil
	}

	articles, err := newIngester(cfg).Ingest(ctx, feeds.SourcesFromMap(cfg.Feeds.Sources))
	if err != nil {
		return nil, err
	}
	if st != nil {
		added, err := st.SaveArticles(articles)
		if err != nil {
			logger.Warn("Failed to archive articles", "error", err.Error())
		} else {
			logger.Info("Archived articles", "new", added, "fetched", len(articles))
		}
	}

	recent := core.FilterSince(articles, cutoff)
	logger.Info("Articles inside window", "count", len(recent), "window", cfg.FeedWindow().String())
	return recent, nil
}

// buildPublisher assembles the configured provider followed by any chat notifiers.
func buildPublisher(cfg *config.Config) (publish.Publisher, error) {
	var primary publish.Publisher
	switch cfg.Publish.Provider {
	case publish.ProviderFile:
		primary = publish.NewFilePublisher(cfg.Publish.Directory)
	case publish.ProviderSubstack:
		s, err := publish.NewSubstack(cfg.SubstackOptions())
		if err != nil {
			return nil, err
		}
		primary = s
	case publish.ProviderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown publish provider: %s", cfg.Publish.Provider)
	}

	chain := publish.Chain{primary}
	hooks := []struct {
		platform publish.Platform
		url      string
	}{
		{publish.PlatformSlack, cfg.Publish.Notify.Slack.WebhookURL},
		{publish.PlatformDiscord, cfg.Publish.Notify.Discord.WebhookURL},
	}
	for _, h := range hooks {
		if h.url == "" {
			continue
		}
		w, err := publish.NewWebhook(h.platform, h.url)
		if err != nil {
			return nil, err
		}
		chain = append(chain, w)
	}
	if len(chain) == 1 {
		return primary, nil
	}
	return chain, nil
}

// published is what publishDigest reports back.
type published struct {
	Title    string
	Location string
}

// publishDigest publishes the selected document of runDir and records it in the archive.
func publishDigest(ctx context.Context, cfg *config.Config, pub publish.Publisher, st *store.Store, runDir string, best core.ScoreEntry, text string, date time.Time) (*published, error) {
	title := publish.Title(date, cfg.Publish.TitleSuffix)
	out := &published{Title: title}

	if pub != nil {
		loc, err := pub.Publish(ctx, title, text)
		if err != nil {
			return nil, fmt.Errorf("failed to publish digest: %w", err)
		}
		out.Location = loc
		logger.Info("Digest published", "provider", pub.Name(), "location", loc)
	}

	if st != nil {
		err := st.SaveDigest(store.Digest{
			RunDir:    runDir,
			Title:     title,
			Content:   text,
			AttemptID: best.AttemptID,
			Score:     best.Score,
		})
		if err != nil {
			logger.Warn("Failed to archive digest", "error", err.Error())
		}
	}
	return out, nil
}
