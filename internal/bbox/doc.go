// Package bbox holds the geometry shared by issue normalization, dedup, and
// extraction: normalized box validation, pixel conversion, IoU, and an
// overlap-based join for detection sets that number figures independently.
package bbox
