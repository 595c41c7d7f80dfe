package dart

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/ternarybob/dartseries/internal/models"
)

const corpCodePath = "/corpCode.xml"

// GetCorpCodes downloads the full corp-code directory.
// The endpoint answers with a zip archive holding a single XML document,
// or with a bare XML status document on error.
func (c *Client) GetCorpCodes(ctx context.Context) ([]models.Corporation, error) {
	body, err := c.fetch(ctx, corpCodePath, nil)
	if err != nil {
		return nil, err
	}

	if !bytes.HasPrefix(body, []byte("PK")) {
		var result corpCodeResult
		if err := xml.Unmarshal(body, &result); err != nil {
			c.observe(corpCodePath, "decode_error")
			return nil, fmt.Errorf("failed to decode corp code response: %w", err)
		}
		if err := c.checkStatus(corpCodePath, result.Status, result.Message); err != nil {
			return nil, err
		}
		// A 000 status without an archive is still unusable
		c.observe(corpCodePath, "decode_error")
		return nil, fmt.Errorf("corp code response was not a zip archive")
	}

	entries, err := parseCorpCodeArchive(body)
	if err != nil {
		c.observe(corpCodePath, "decode_error")
		return nil, err
	}
	c.observe(corpCodePath, "ok")

	corps := make([]models.Corporation, 0, len(entries))
	for _, e := range entries {
		code := strings.TrimSpace(e.CorpCode)
		name := strings.TrimSpace(e.CorpName)
		if code == "" || name == "" {
			continue
		}
		corps = append(corps, models.Corporation{
			CorpCode:    models.CorpCode(code),
			Name:        name,
			EnglishName: strings.TrimSpace(e.CorpEngName),
			StockCode:   strings.TrimSpace(e.StockCode),
			ModifyDate:  strings.TrimSpace(e.ModifyDate),
		})
	}

	if c.logger != nil {
		c.logger.Info().Int("corporations", len(corps)).Msg("Downloaded corp code directory")
	}

	return corps, nil
}

// parseCorpCodeArchive reads the first XML file in the archive.
func parseCorpCodeArchive(data []byte) ([]CorpCodeEntry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open corp code archive: %w", err)
	}

	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}

		var result corpCodeResult
		if err := xml.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", f.Name, err)
		}
		return result.List, nil
	}

	return nil, fmt.Errorf("corp code archive contains no XML file")
}
