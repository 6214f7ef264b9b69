package pagesnap

import (
	"context"
	"time"

	"github.com/root4loot/goutils/log"

	"github.com/root4loot/pagesnap/pkg/browser"
	"github.com/root4loot/pagesnap/pkg/capture"
	"github.com/root4loot/pagesnap/pkg/page"
)

// CaptureLinks logs in, waits for the landmark and captures every page linked from the landing
// page whose href contains keyword. Each page is named after the numeric segment of its link;
// links without one are skipped.
func (s *Scraper) CaptureLinks(ctx context.Context, directory, landmarkID, keyword string) ([]capture.Result, error) {
	if directory == "" {
		return nil, capture.ErrNoDirectory
	}

	var results, seen []capture.Result
	err := browser.Scoped(ctx, s.launch, s.browserOptions(), func(session browser.Session) error {
		if err := s.login(ctx, session, landmarkID); err != nil {
			return err
		}

		links, err := page.SearchLinks(ctx, session, keyword)
		if err != nil {
			return err
		}
		log.Debugf("Found %d links matching %q", len(links), keyword)

		for _, link := range links {
			if _, err := capture.FilenameFromURL(link); err != nil {
				log.Warnf("Skipping %s: %v", link, err)
				continue
			}

			result, err := s.captureLink(ctx, session, link, directory, &seen)
			if err != nil {
				return err
			}
			if result != nil {
				results = append(results, *result)
			}
		}
		return nil
	})

	return results, err
}

// captureLink captures link and writes it unless it duplicates a screenshot in seen. Similarity is
// judged on screenshots before imprinting.
func (s *Scraper) captureLink(ctx context.Context, session browser.Session, link, directory string, seen *[]capture.Result) (*capture.Result, error) {
	result, err := capture.Take(ctx, session, capture.Request{
		URL:      link,
		Selector: s.Options.Selector,
		MinWait:  s.Options.MinWait,
	})
	if err != nil {
		return nil, err
	}

	if s.Options.AvoidDuplicates {
		similar, err := result.IsSimilarToAny(*seen, s.Options.DuplicateThreshold)
		if err != nil {
			return nil, err
		}
		if similar {
			log.Warnf("Skipping %s: duplicate screenshot", link)
			return nil, nil
		}
	}
	*seen = append(*seen, *result)

	if s.Options.Imprint {
		caption := result.URL + "  " + time.Now().Format(time.RFC3339)
		if result.Image, err = result.Image.Imprint(caption); err != nil {
			return nil, err
		}
	}

	if err := result.WriteToFolder(directory); err != nil {
		return nil, err
	}
	log.Resultf("Captured %s to %s", result.URL, result.ImagePath)
	return result, nil
}
