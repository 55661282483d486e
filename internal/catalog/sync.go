package catalog

import (
	"log/slog"
	"path"
	"strings"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/storage"
)

// Sync walks the vault and brings the catalog up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the catalog
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexNote(db, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteNote(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// indexNote parses data and upserts it into the catalog.
func indexNote(db *DB, notePath string, data []byte) error {
	fm, body := frontmatter.Parse(data)

	folder := path.Dir(notePath)
	if folder == "." {
		folder = ""
	}
	tags, _ := fm.GetStringSlice(models.KeyTags)

	return db.UpsertNote(NoteRow{
		Path:     notePath,
		Folder:   folder,
		Title:    deriveTitle(fm, body),
		Checksum: checksum.Sum(data),
		Tags:     tags,
	}, body)
}

// deriveTitle returns the front-matter title if present, otherwise the
// first H1 heading, otherwise the file name stem.
func deriveTitle(fm *frontmatter.Mapping, body string) string {
	if t, ok := fm.GetString(models.KeyTitle); ok && t != "" {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
