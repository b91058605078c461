// Package audio resolves background music tracks and inspects their length.
package audio

import (
	"path/filepath"
	"sort"

	"github.com/maauso/photoreel-api/internal/composition"
)

// defaultTracks maps each selectable key to its file name inside the music
// directory.
var defaultTracks = map[composition.AudioSelection]string{
	composition.AudioAdventure: "adventure.mp3",
	composition.AudioEpic:      "epic.mp3",
	composition.AudioPeaceful:  "peaceful.mp3",
}

// Registry is the fixed set of background tracks shipped with the service.
type Registry struct {
	dir    string
	tracks map[composition.AudioSelection]string
}

// NewRegistry returns a Registry whose tracks live under dir.
func NewRegistry(dir string) *Registry {
	tracks := make(map[composition.AudioSelection]string, len(defaultTracks))
	for k, v := range defaultTracks {
		tracks[k] = v
	}
	return &Registry{dir: dir, tracks: tracks}
}

// Dir returns the directory the tracks are read from.
func (r *Registry) Dir() string {
	return r.dir
}

// Resolve returns the file path for key. The empty selection has no track
// and resolves to "".
func (r *Registry) Resolve(key composition.AudioSelection) (string, error) {
	if key == composition.AudioNone {
		return "", nil
	}
	name, ok := r.tracks[key]
	if !ok {
		return "", &composition.UnknownAudioTrackError{Key: string(key)}
	}
	return filepath.Join(r.dir, name), nil
}

// Keys returns the registered selections in lexical order.
func (r *Registry) Keys() []composition.AudioSelection {
	keys := make([]composition.AudioSelection, 0, len(r.tracks))
	for k := range r.tracks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
