package wiki

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ImportJSONL saves one document per JSON line from r and returns how many
// were saved. Blank lines are skipped; a malformed line stops the import.
func (s *Store) ImportJSONL(ctx context.Context, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	n, line := 0, 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var d Document
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		// documents are matched on (locale, slug); ids are assigned locally
		d.ID = 0
		if err := s.Save(ctx, &d); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
	}
	return n, sc.Err()
}
