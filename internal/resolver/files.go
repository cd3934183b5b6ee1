package resolver

import (
	"path/filepath"
	"strings"
)

// minUsefulBytes keeps large unrecognized files (disc images, raw dumps)
// selectable while dropping samples, subtitles and site spam.
const minUsefulBytes = 50 * 1024 * 1024

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".mov": true,
	".wmv": true, ".flv": true, ".webm": true, ".m4v": true,
	".mpg": true, ".mpeg": true, ".ts": true,
}

var archiveExtensions = map[string]bool{
	".zip": true, ".rar": true, ".7z": true, ".tar": true,
	".gz": true, ".bz2": true, ".xz": true,
}

// IsUsefulFile reports whether a torrent file is worth offering for
// selection: video, archive, or anything big enough to be the payload.
func IsUsefulFile(path string, bytes int64) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if videoExtensions[ext] || archiveExtensions[ext] {
		return true
	}
	return bytes >= minUsefulBytes
}

// UsefulFiles filters a torrent's file list down to selectable entries.
// When the filter would drop everything, the full list is returned so the
// user can still pick manually.
func UsefulFiles(files []TorrentFile) []TorrentFile {
	var out []TorrentFile
	for _, f := range files {
		if IsUsefulFile(f.Path, f.Bytes) {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return files
	}
	return out
}
