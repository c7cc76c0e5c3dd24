package extractor

// Marker locates the embedded state blob in one revision of the provider's
// page markup.
type Marker struct {
	Name string
	// Selector finds the script element carrying the blob.
	Selector string
	// StatePath is the gjson path from the blob root to the redux state.
	// Empty means the blob itself is the state.
	StatePath string
}

// DefaultMarkers lists the known page revisions, newest first.
var DefaultMarkers = []Marker{
	{Name: "pws_data", Selector: "script#__PWS_DATA__", StatePath: "props.initialReduxState"},
	{Name: "pws_initial_props", Selector: "script#__PWS_INITIAL_PROPS__", StatePath: "initialReduxState"},
	{Name: "initial_state", Selector: "script#initial-state"},
}

// videoSources are tried in order; the first non-empty URL wins.
var videoSources = []struct {
	name string
	path string
}{
	{name: "pin_video", path: "videos.video_list.V_720P"},
	{name: "story_video", path: "story_pin_data.pages.0.blocks.0.video.video_list.V_EXP7"},
}

const (
	imagePath        = "images.orig.url"
	fallbackImageCSS = `meta[name="og:image"], meta[property="og:image"]`
)
