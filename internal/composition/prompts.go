package composition

const describeSystemPrompt = `You describe the geometry of an illustration. Report only what is visible.
Never guess what the artist intended. Do not describe facial expressions, hand pose details,
clothing, colours, or ages.`

const describeInstruction = `List every human or animal figure and every prominent landmark.
For each figure give: frame position (left, center-left, center, center-right, right, plus
foreground/midground/background), torso orientation relative to the camera (toward camera,
away from camera, left profile, right profile, three-quarter), face direction, whether the
face is visible, pointing direction if an arm is extended (or "none"), a short pose label, and
objects held. For landmarks give name, frame position, and visibility (full, partial, hidden).
Count visible faces. Transcribe any visible text.
Respond with JSON only:
{"figures":[{"id":"figure-1","framePosition":"","torsoOrientation":"","faceDirection":"","faceVisible":true,"pointingDirection":"none","pose":"","heldObjects":[]}],
 "landmarks":[{"name":"","framePosition":"","visibility":""}],
 "visibleFaceCount":0,"setting":"","visibleText":""}`

const analyzeSystemPrompt = `You match figures in an illustration to named characters and landmarks.
Use appearance, position, and the supplied geometric description. Say "unknown" when unsure.`

const compareSystemPrompt = `You audit a draft illustration against its scene specification. You are given
the specification and an independent geometric description of the draft. Judge every check strictly
from the description; when the description is silent, pass the check.`

const repairSystemPrompt = `You fix scene specifications so an illustrator can draw them without contradictions.
Change as little as possible. Keep every character. Respond with JSON only.`

const repairResponseShape = `{"fixes":[{"checkId":"","change":""}],"correctedScene":{...same shape as the input scene...}}`
