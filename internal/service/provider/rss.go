package provider

import (
	"context"
	"sort"
	"time"

	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/krobus00/trading-dashboard/internal/service/breaker"
	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
)

// RSSNews merges the configured feeds newest first. Feeds that fail to parse
// are skipped; an error is returned only when every feed failed.
func (c *Client) RSSNews(ctx context.Context) ([]entity.NewsItem, error) {
	if len(c.cfg.NewsFeeds) == 0 {
		return nil, nil
	}

	type dated struct {
		item      entity.NewsItem
		published time.Time
	}

	var (
		collected []dated
		lastErr   error
		succeeded int
	)
	for _, feedURL := range c.cfg.NewsFeeds {
		feed, err := breaker.Call(ctx, c.breakers, breaker.ProviderRSS, func(ctx context.Context) (*gofeed.Feed, error) {
			ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
			defer cancel()

			fp := gofeed.NewParser()
			fp.Client = c.httpClient
			return fp.ParseURLWithContext(feedURL, ctx)
		}, nil)
		if err != nil {
			logrus.WithField("feed", feedURL).Warn(err)
			lastErr = err
			continue
		}
		succeeded++

		for _, it := range feed.Items {
			d := dated{item: entity.NewsItem{
				Title:   it.Title,
				Summary: it.Description,
				Source:  feed.Title,
				URL:     it.Link,
				Tickers: []string{},
			}}
			if it.PublishedParsed != nil {
				d.published = *it.PublishedParsed
				d.item.TimePublished = it.PublishedParsed.UTC().Format("20060102T150405")
			}
			collected = append(collected, d)
		}
	}

	if succeeded == 0 {
		return nil, lastErr
	}

	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].published.After(collected[j].published)
	})

	items := make([]entity.NewsItem, 0, min(len(collected), maxNewsItems))
	for _, d := range collected {
		if len(items) == maxNewsItems {
			break
		}
		items = append(items, d.item)
	}
	return items, nil
}
