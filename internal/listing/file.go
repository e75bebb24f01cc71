package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spigell/career-match/internal/query"
)

// FileSource serves listings from a JSON file. The file may contain either
// {"items": [...]} or a bare array. It is re-read on every call.
type FileSource struct {
	Path string
}

func (f *FileSource) Listings(_ context.Context, _ query.Criteria) (*Listings, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open listings file: %w", err)
	}
	defer file.Close()

	listings, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode listings file %q: %w", f.Path, err)
	}
	return listings, nil
}

// Decode reads listings in either supported JSON layout.
func Decode(r io.Reader) (*Listings, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return &Listings{}, nil
	}

	if data[0] == '[' {
		var items []*Listing
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return &Listings{Items: items}, nil
	}

	var listings Listings
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, err
	}
	return &listings, nil
}

// Excluded is the content of an exclude file: listings the user never wants
// to see again.
type Excluded struct {
	Items []*ExcludedListing `json:"items"`
}

type ExcludedListing struct {
	ID         string    `json:"id"`
	URL        string    `json:"url,omitempty"`
	Company    string    `json:"company,omitempty"`
	ExcludedAt time.Time `json:"excludedAt"`
}

// ToExcluded converts the listings into exclude file entries.
func (l *Listings) ToExcluded() *Excluded {
	excluded := &Excluded{}
	for _, item := range l.Items {
		excluded.Items = append(excluded.Items, &ExcludedListing{
			ID:         item.ID,
			URL:        item.URL,
			Company:    item.Company,
			ExcludedAt: time.Now().UTC(),
		})
	}
	return excluded
}

// LoadExcluded reads an exclude file. A missing or empty file yields an
// empty list.
func LoadExcluded(path string) (*Excluded, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return &Excluded{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Excluded{}, nil
		}
		return nil, err
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return &Excluded{}, nil
	}

	var excluded Excluded
	if err := json.Unmarshal(data, &excluded); err != nil {
		return nil, fmt.Errorf("decode exclude file %q: %w", path, err)
	}
	return &excluded, nil
}

// Append adds entries whose ids are not yet present.
func (e *Excluded) Append(other *Excluded) {
	if other == nil {
		return
	}
	seen := toSet(e.IDs(), false)
	for _, item := range other.Items {
		if !seen[item.ID] {
			seen[item.ID] = true
			e.Items = append(e.Items, item)
		}
	}
}

func (e *Excluded) IDs() []string {
	ids := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

// ToFile overwrites path with the exclude list.
func (e *Excluded) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}
