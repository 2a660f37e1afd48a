// Package extract turns issue regions into fixed-size thumbnails that carry
// enough surrounding context for a regional repair model.
package extract
