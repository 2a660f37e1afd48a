package composition

// CheckID names one of the fixed composition checks.
type CheckID string

const (
	CheckScaleFeasibility           CheckID = "scale_feasibility"
	CheckObjectPlacement            CheckID = "object_placement"
	CheckActionObjectCompatibility  CheckID = "action_object_compatibility"
	CheckPointingGazeGeometry       CheckID = "pointing_gaze_geometry"
	CheckCameraExpressionVisibility CheckID = "camera_expression_visibility"
	CheckPoseUniqueness             CheckID = "pose_uniqueness"
	CheckPhysicsPlausibility        CheckID = "physics_plausibility"
	CheckWeatherLocation            CheckID = "weather_location_consistency"
	CheckCharacterDistance          CheckID = "character_distance"
	CheckLocationContinuity         CheckID = "location_continuity"
	CheckTextFidelity               CheckID = "text_fidelity"
	CheckPathConsistency            CheckID = "path_consistency"
	CheckSharedObjectInteraction    CheckID = "shared_object_interaction"
	CheckObstacleBlocking           CheckID = "obstacle_blocking"
	CheckHeldInventory              CheckID = "held_inventory"
	CheckBackgroundVisibility       CheckID = "background_visibility"
	CheckVisibleFaceCount           CheckID = "visible_face_count"
)

// CheckDefinition is the question put to the model for one check.
type CheckDefinition struct {
	ID       CheckID
	Question string
}

// Checks is the fixed checklist in evaluation order.
var Checks = []CheckDefinition{
	{CheckScaleFeasibility, "Is each element large enough in frame for the detail the scene requires?"},
	{CheckObjectPlacement, "Is every object where the scene places it?"},
	{CheckActionObjectCompatibility, "Can each action physically be performed with the objects involved?"},
	{CheckPointingGazeGeometry, "Given each figure's facing, can it actually point or look at its stated target?"},
	{CheckCameraExpressionVisibility, "Is every requested facial expression visible from the camera angle?"},
	{CheckPoseUniqueness, "Does each character have a distinct pose?"},
	{CheckPhysicsPlausibility, "Is everything supported, balanced, and physically plausible?"},
	{CheckWeatherLocation, "Do weather and lighting fit the location?"},
	{CheckCharacterDistance, "Are characters as close or far apart as the scene requires?"},
	{CheckLocationContinuity, "Does the setting match the stated (and previous) location?"},
	{CheckTextFidelity, "Is required on-image text present and correct, and no other text added?"},
	{CheckPathConsistency, "Do figures on a path, road, or line stand along it consistently?"},
	{CheckSharedObjectInteraction, "Do characters sharing an object both touch or use the same object?"},
	{CheckObstacleBlocking, "Is any required element hidden behind an obstacle?"},
	{CheckHeldInventory, "Does each character hold exactly the objects the scene gives them?"},
	{CheckBackgroundVisibility, "Are the required background elements visible?"},
	{CheckVisibleFaceCount, "Are at most three faces visible?"},
}

func knownCheck(id CheckID) bool {
	for _, def := range Checks {
		if def.ID == id {
			return true
		}
	}
	return false
}
