package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"modelhub/pkg/models"
)

// ReadCSV parses catalog rows. The header names the columns (any order,
// case-insensitive): external_id and title are required, the rest
// optional. images is a "|" separated list. Rows without an id or a title
// are skipped.
func ReadCSV(in io.Reader) ([]models.Listing, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1

	header, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for _, col := range []string{"external_id", "title"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var out []models.Listing
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(row) == 0 {
			continue
		}

		l := models.Listing{
			Source:         SourceName,
			ExternalID:     valueAt(header, row, "external_id"),
			Title:          valueAt(header, row, "title"),
			Description:    valueAt(header, row, "description"),
			ThumbnailURL:   valueAt(header, row, "thumbnail_url"),
			CreatorName:    valueAt(header, row, "creator_name"),
			CreatorProfile: valueAt(header, row, "creator_profile"),
			Currency:       valueAt(header, row, "currency"),
			License:        valueAt(header, row, "license"),
			Category:       valueAt(header, row, "category"),
			URL:            valueAt(header, row, "url"),
		}
		if l.ExternalID == "" || l.Title == "" {
			continue
		}

		if raw := valueAt(header, row, "images"); raw != "" {
			for _, img := range strings.Split(raw, "|") {
				if img = strings.TrimSpace(img); img != "" {
					l.Images = append(l.Images, img)
				}
			}
		}

		if l.Price, err = parseFloat(valueAt(header, row, "price")); err != nil {
			return nil, fmt.Errorf("line %d: price for %s: %w", line, l.ExternalID, err)
		}
		free := valueAt(header, row, "is_free")
		if free == "" {
			l.IsFree = l.Price == 0
		} else if l.IsFree, err = strconv.ParseBool(free); err != nil {
			return nil, fmt.Errorf("line %d: is_free for %s: %w", line, l.ExternalID, err)
		}
		if sub := valueAt(header, row, "subscription"); sub != "" {
			if l.Subscription, err = strconv.ParseBool(sub); err != nil {
				return nil, fmt.Errorf("line %d: subscription for %s: %w", line, l.ExternalID, err)
			}
		}

		for col, dst := range map[string]*int{
			"likes":      &l.Likes,
			"views":      &l.Views,
			"makes":      &l.Makes,
			"file_count": &l.FileCount,
		} {
			if *dst, err = parseInt(valueAt(header, row, col)); err != nil {
				return nil, fmt.Errorf("line %d: %s for %s: %w", line, col, l.ExternalID, err)
			}
		}

		if raw := valueAt(header, row, "created_at"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: created_at for %s: %w", line, l.ExternalID, err)
			}
			l.CreatedAt = t.UTC()
		}

		out = append(out, l)
	}
	return out, nil
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func parseFloat(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}

var csvColumns = []string{
	"external_id", "title", "description", "thumbnail_url", "images", "creator_name", "creator_profile",
	"price", "currency", "is_free", "subscription", "likes", "views", "makes", "file_count",
	"license", "category", "created_at", "url",
}

// WriteCSV writes listings in the layout ReadCSV accepts.
func WriteCSV(out io.Writer, listings []models.Listing) error {
	w := csv.NewWriter(out)
	if err := w.Write(csvColumns); err != nil {
		return err
	}
	for _, l := range listings {
		created := ""
		if !l.CreatedAt.IsZero() {
			created = l.CreatedAt.UTC().Format(time.RFC3339)
		}
		if err := w.Write([]string{
			l.ExternalID,
			l.Title,
			l.Description,
			l.ThumbnailURL,
			strings.Join(l.Images, "|"),
			l.CreatorName,
			l.CreatorProfile,
			strconv.FormatFloat(l.Price, 'f', -1, 64),
			l.Currency,
			strconv.FormatBool(l.IsFree),
			strconv.FormatBool(l.Subscription),
			strconv.Itoa(l.Likes),
			strconv.Itoa(l.Views),
			strconv.Itoa(l.Makes),
			strconv.Itoa(l.FileCount),
			l.License,
			l.Category,
			created,
			l.URL,
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
