// Package composition validates a scene specification before final rendering.
//
// A cheap preview is rendered and described by a vision model that never sees
// the scene, so the description cannot simply confirm the request. The
// description is compared against the scene over a fixed checklist, and a
// failing scene gets one textual repair attempt. Three failures are decided
// locally and always critical: a figure facing the camera while pointing at
// something behind it, an expression requested on a figure whose back is to
// the camera, and more than three visible faces.
package composition
