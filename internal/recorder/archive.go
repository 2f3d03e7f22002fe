package recorder

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// multipartThreshold switches uploads to the multipart API.
const multipartThreshold int64 = 5 * 1024 * 1024

// Archive uploads session files under <prefix>/<session>/<basename>. Empty
// paths are skipped. It returns the uploaded keys.
func Archive(ctx context.Context, blob domain.BlobWriter, prefix, session string, files ...string) ([]string, error) {
	var keys []string
	for _, p := range files {
		if p == "" {
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			return keys, fmt.Errorf("recorder: archive open %s: %w", p, err)
		}
		key := path.Join(prefix, session, filepath.Base(p))
		if st, serr := f.Stat(); serr == nil && st.Size() > multipartThreshold {
			err = blob.PutMultipart(ctx, key, f, multipartThreshold)
		} else {
			err = blob.Put(ctx, key, f, contentType(p))
		}
		f.Close()
		if err != nil {
			return keys, fmt.Errorf("recorder: archive upload %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func contentType(p string) string {
	switch filepath.Ext(p) {
	case ".jsonl":
		return "application/x-ndjson"
	case ".csv":
		return "text/csv"
	default:
		return "text/plain"
	}
}
