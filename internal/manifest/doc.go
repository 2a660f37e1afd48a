// Package manifest persists per-story issue records and their thumbnail
// artifacts.
//
// Layout under the stories directory:
//
//	<storyId>/issues/manifest.json
//	<storyId>/issues/page{N}/original.jpg
//	<storyId>/issues/page{N}/issue_{k}_{type}.jpg
//
// Writers take a per-story advisory lock and replace the manifest with a
// temp-file rename; pages are overwritten individually.
package manifest
